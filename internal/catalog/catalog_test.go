package catalog

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogContents(t *testing.T) {
	c := Default()

	tools := c.List()
	require.NotEmpty(t, tools)

	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description, "tool %s has no description", tool.Name)
		assert.Equal(t, "object", tool.InputSchema["type"], "tool %s schema is not an object", tool.Name)
	}

	for _, expected := range []string{
		"create_rectangle", "create_text", "set_fill", "apply_style",
		"bind_token", "get_document_info", "notify_user", "run_script",
	} {
		assert.Contains(t, names, expected)
	}

	// List ordering is stable.
	assert.IsIncreasing(t, names)
}

func TestRenderEmbedsArgsAsJSON(t *testing.T) {
	c := Default()

	script, err := c.Render("create_rectangle", map[string]any{
		"x": 10.0, "y": 20.0, "width": 100.0, "height": 50.0,
		"name": "Card",
		"fill": "#FF8800",
	})
	require.NoError(t, err)

	assert.Contains(t, script, "node.x = 10;")
	assert.Contains(t, script, "node.resize(100, 50);")
	assert.Contains(t, script, `node.name = "Card";`)
	assert.Contains(t, script, `canvas.solidPaint("#FF8800")`)
}

func TestRenderEscapesHostileInput(t *testing.T) {
	c := Default()

	// A value trying to break out of the string literal must stay inert.
	script, err := c.Render("create_text", map[string]any{
		"x": 0.0, "y": 0.0,
		"content": `"; canvas.root.remove(); //`,
	})
	require.NoError(t, err)

	assert.NotContains(t, script, `= "; canvas.root.remove()`)
	assert.Contains(t, script, `\"; canvas.root.remove(); //`)
}

func TestRenderOptionalFieldsOmitted(t *testing.T) {
	c := Default()

	script, err := c.Render("create_rectangle", map[string]any{
		"x": 1.0, "y": 2.0, "width": 3.0, "height": 4.0,
	})
	require.NoError(t, err)

	assert.NotContains(t, script, "node.name")
	assert.NotContains(t, script, "node.fills")
}

func TestRenderMissingRequiredArgument(t *testing.T) {
	c := Default()

	_, err := c.Render("set_fill", map[string]any{"nodeId": "1:2"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing required argument "color"`)
}

func TestRenderUnknownArgument(t *testing.T) {
	c := Default()

	_, err := c.Render("delete_node", map[string]any{
		"nodeId": "1:2",
		"force":  true,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown argument "force"`)
}

func TestRenderRejectsNonScriptKinds(t *testing.T) {
	c := Default()

	for _, name := range []string{"get_document_info", "notify_user", "run_script"} {
		_, err := c.Render(name, map[string]any{})
		assert.Error(t, err, "tool %s must not render a script", name)
	}
}

func TestRenderUnknownTool(t *testing.T) {
	c := Default()

	_, err := c.Render("does_not_exist", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestRegisterDuplicate(t *testing.T) {
	c := New()

	tool := Tool{Name: "x", Description: "d", Kind: KindScript, InputSchema: objectSchema(map[string]any{})}
	require.NoError(t, c.Register(tool, "return 1;"))
	assert.Error(t, c.Register(tool, "return 1;"))
}

func TestRegisterBadTemplate(t *testing.T) {
	c := New()

	tool := Tool{Name: "bad", Description: "d", Kind: KindScript, InputSchema: objectSchema(map[string]any{})}
	err := c.Register(tool, "return {{json .x;")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "template"))
}
