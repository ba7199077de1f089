package catalog

// Default returns the built-in tool catalog for the Canvas scripting API.
// Script bodies address the `canvas` host object exposed to plugin scripts;
// every caller-supplied value is embedded through the json template func.
func Default() *Catalog {
	c := New()

	register := func(tool Tool, script string) {
		// Built-in registrations cannot collide or fail to parse; a
		// failure here is a programming error caught by the tests.
		if err := c.Register(tool, script); err != nil {
			panic(err)
		}
	}

	register(Tool{
		Name:        "create_rectangle",
		Description: "Create a rectangle on the current page.",
		Kind:        KindScript,
		InputSchema: objectSchema(map[string]any{
			"x":      numberProp("X position"),
			"y":      numberProp("Y position"),
			"width":  numberProp("Width in pixels"),
			"height": numberProp("Height in pixels"),
			"name":   stringProp("Layer name"),
			"fill":   stringProp("Fill color as hex, e.g. #FF8800"),
		}, "x", "y", "width", "height"),
	}, `
const node = canvas.createRectangle();
node.x = {{json .x}};
node.y = {{json .y}};
node.resize({{json .width}}, {{json .height}});
{{if .name}}node.name = {{json .name}};{{end}}
{{if .fill}}node.fills = [canvas.solidPaint({{json .fill}})];{{end}}
return canvas.describeNode(node);
`)

	register(Tool{
		Name:        "create_frame",
		Description: "Create a frame (container) on the current page.",
		Kind:        KindScript,
		InputSchema: objectSchema(map[string]any{
			"x":      numberProp("X position"),
			"y":      numberProp("Y position"),
			"width":  numberProp("Width in pixels"),
			"height": numberProp("Height in pixels"),
			"name":   stringProp("Frame name"),
		}, "x", "y", "width", "height"),
	}, `
const frame = canvas.createFrame();
frame.x = {{json .x}};
frame.y = {{json .y}};
frame.resize({{json .width}}, {{json .height}});
{{if .name}}frame.name = {{json .name}};{{end}}
return canvas.describeNode(frame);
`)

	register(Tool{
		Name:        "create_text",
		Description: "Create a text node with the given content.",
		Kind:        KindScript,
		InputSchema: objectSchema(map[string]any{
			"x":        numberProp("X position"),
			"y":        numberProp("Y position"),
			"content":  stringProp("Text content"),
			"fontSize": numberProp("Font size in pixels"),
		}, "x", "y", "content"),
	}, `
const text = canvas.createText();
text.x = {{json .x}};
text.y = {{json .y}};
await canvas.loadFontFor(text);
text.characters = {{json .content}};
{{if .fontSize}}text.fontSize = {{json .fontSize}};{{end}}
return canvas.describeNode(text);
`)

	register(Tool{
		Name:        "set_fill",
		Description: "Set the solid fill color of a node.",
		Kind:        KindScript,
		InputSchema: objectSchema(map[string]any{
			"nodeId": stringProp("Target node id"),
			"color":  stringProp("Fill color as hex"),
		}, "nodeId", "color"),
	}, `
const node = canvas.getNodeById({{json .nodeId}});
if (!node) { throw new Error("node not found: " + {{json .nodeId}}); }
node.fills = [canvas.solidPaint({{json .color}})];
return canvas.describeNode(node);
`)

	register(Tool{
		Name:        "apply_style",
		Description: "Apply a named shared style to a node.",
		Kind:        KindScript,
		InputSchema: objectSchema(map[string]any{
			"nodeId":    stringProp("Target node id"),
			"styleName": stringProp("Shared style name"),
		}, "nodeId", "styleName"),
	}, `
const node = canvas.getNodeById({{json .nodeId}});
if (!node) { throw new Error("node not found: " + {{json .nodeId}}); }
const style = canvas.getStyleByName({{json .styleName}});
if (!style) { throw new Error("style not found: " + {{json .styleName}}); }
canvas.applyStyle(node, style);
return canvas.describeNode(node);
`)

	register(Tool{
		Name:        "bind_token",
		Description: "Bind a design token to a node property.",
		Kind:        KindScript,
		InputSchema: objectSchema(map[string]any{
			"nodeId":   stringProp("Target node id"),
			"property": stringProp("Property to bind, e.g. fill, stroke, radius"),
			"token":    stringProp("Design token path, e.g. color/primary"),
		}, "nodeId", "property", "token"),
	}, `
const node = canvas.getNodeById({{json .nodeId}});
if (!node) { throw new Error("node not found: " + {{json .nodeId}}); }
const token = canvas.tokens.resolve({{json .token}});
if (!token) { throw new Error("design token missing: " + {{json .token}}); }
canvas.tokens.bind(node, {{json .property}}, token);
return canvas.describeNode(node);
`)

	register(Tool{
		Name:        "move_node",
		Description: "Move a node to an absolute position.",
		Kind:        KindScript,
		InputSchema: objectSchema(map[string]any{
			"nodeId": stringProp("Target node id"),
			"x":      numberProp("New X position"),
			"y":      numberProp("New Y position"),
		}, "nodeId", "x", "y"),
	}, `
const node = canvas.getNodeById({{json .nodeId}});
if (!node) { throw new Error("node not found: " + {{json .nodeId}}); }
node.x = {{json .x}};
node.y = {{json .y}};
return canvas.describeNode(node);
`)

	register(Tool{
		Name:        "resize_node",
		Description: "Resize a node.",
		Kind:        KindScript,
		InputSchema: objectSchema(map[string]any{
			"nodeId": stringProp("Target node id"),
			"width":  numberProp("New width in pixels"),
			"height": numberProp("New height in pixels"),
		}, "nodeId", "width", "height"),
	}, `
const node = canvas.getNodeById({{json .nodeId}});
if (!node) { throw new Error("node not found: " + {{json .nodeId}}); }
node.resize({{json .width}}, {{json .height}});
return canvas.describeNode(node);
`)

	register(Tool{
		Name:        "delete_node",
		Description: "Delete a node from the document.",
		Kind:        KindScript,
		InputSchema: objectSchema(map[string]any{
			"nodeId": stringProp("Target node id"),
		}, "nodeId"),
	}, `
const node = canvas.getNodeById({{json .nodeId}});
if (!node) { throw new Error("node not found: " + {{json .nodeId}}); }
node.remove();
return { deleted: {{json .nodeId}} };
`)

	register(Tool{
		Name:        "get_selection",
		Description: "Describe the currently selected nodes.",
		Kind:        KindScript,
		InputSchema: objectSchema(map[string]any{}),
	}, `
return canvas.selection.map((node) => canvas.describeNode(node));
`)

	register(Tool{
		Name:        "get_document_info",
		Description: "Describe the open document, current page, and selection.",
		Kind:        KindContext,
		InputSchema: objectSchema(map[string]any{}),
	}, "")

	register(Tool{
		Name:        "notify_user",
		Description: "Show a toast notification in the Canvas UI.",
		Kind:        KindNotify,
		InputSchema: objectSchema(map[string]any{
			"message":    stringProp("Text to show"),
			"durationMs": numberProp("How long to show the toast, in milliseconds"),
		}, "message"),
	}, "")

	register(Tool{
		Name:        "run_script",
		Description: "Run an arbitrary script against the Canvas scripting API. The script body is passed through unmodified.",
		Kind:        KindRaw,
		InputSchema: objectSchema(map[string]any{
			"script": stringProp("Script body to execute"),
		}, "script"),
	}, "")

	return c
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func numberProp(description string) map[string]any {
	return map[string]any{"type": "number", "description": description}
}

func stringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}
