package mcpserver

// MapFormatContract describes the map document and the sector image
// exchange file for LLM consumers.
const MapFormatContract = `# TERA Map Format

A TERA map is a circular diagram of twelve functions. One active map
document is open at a time.

## Functions

Functions are numbered 1..12 and never change. In 4-sector mode they are
shown as four groups of three:

- A Ориентация: 1, 2, 3
- B Различение: 4, 5, 6
- C Решение: 7, 8, 9
- D Завершение: 10, 11, 12

## Sector images

- Each function may carry one image, stored inline as a base64 data URI
  (` + "`" + `data:image/png;base64,...` + "`" + `).
- Supported types: png, jpeg, gif, webp, svg, bmp, ico, avif.
- In 4-sector mode only the first function of each group (1, 4, 7, 10) is
  addressable. Images of the other functions are kept and reappear in
  12-sector mode.

## Exchange file

` + "```" + `json
{
  "type": "tera-sector-images",
  "images": {
    "1": "data:image/png;base64,..."
  }
}
` + "```" + `

Import replaces all sector images. A file with another ` + "`" + `type` + "`" + ` or an
invalid image is rejected and nothing changes.

## Nodes

- Fields: ` + "`" + `id` + "`" + `, ` + "`" + `title` + "`" + `, ` + "`" + `synopsis` + "`" + `, ` + "`" + `function_id` + "`" + ` (1..12), ` + "`" + `position` + "`" + ` ({x, y}).
- Ranking fields (score, rank, weight, priority, recommended, relevance)
  are rejected.

## Revisions

Every change returns a new revision. Pass it back as ` + "`" + `revision` + "`" + ` to
make the next change fail instead of overwriting a concurrent edit.
`
