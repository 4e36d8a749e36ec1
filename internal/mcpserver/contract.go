package mcpserver

// CoordinateContract describes how selection geometry must be measured
// before it is passed to capture_selection, and how stored positions are
// projected back onto a page.
const CoordinateContract = `# Marginalia Coordinate Contract

Highlights are captured from two rectangles measured in the same viewport
coordinate space (CSS pixels, origin at the top-left of the viewport):

- **selection**: the bounding box of the selected text.
- **page**: the bounding box of the rendered page container that received
  the selection.

## Stored position

` + "```" + `
position.x      = selection.left - page.left
position.y      = selection.top  - page.top
position.width  = selection.width
position.height = selection.height
` + "```" + `

The position is relative to the page's top-left corner and is stored in the
pixel units of the page as it was rendered at capture time. It is never
clipped, so a selection that spills past the page edge keeps its full size.

Every highlight also carries an ` + "`" + `anchor` + "`" + `: the same box expressed as
fractions of the page width and height at capture time. Overlays are computed
from the anchor, so they follow the page when it is rendered at another size.

## Rules

1. Page numbers are 1-based and must not exceed the page count of the active
   document.
2. Whitespace-only text and zero-area selections are ignored; nothing is stored.
3. Colors come from the fixed palette (see ` + "`" + `get_palette` + "`" + `). Any other value is
   rejected.
4. Selections spanning several pages are not supported. The page passed to
   ` + "`" + `capture_selection` + "`" + ` owns the whole highlight.
5. Highlights live in memory only and are discarded when another document is
   opened.

## Example

A page container at (100, 200) sized 800x1000 and a selection at (150, 220)
sized 80x18 store position (50, 20, 80, 18) and anchor
(0.0625, 0.02, 0.1, 0.018). Rendered at 400x500 the overlay box is
(25, 10, 40, 9).
`
