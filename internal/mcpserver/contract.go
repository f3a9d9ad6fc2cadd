package mcpserver

// DocumentFormatContract describes the canonical Strata outline format
// that LLM consumers should follow when reading or creating documents.
const DocumentFormatContract = `# Strata Document Format Contract

Every Strata outline document MUST follow this structure.

## Structure

` + "```" + `markdown
---
doc-type: strata                    # REQUIRED – marks the file as a Strata outline
title: Human-readable title         # OPTIONAL – mirrors the root item's text
statuses:                           # OPTIONAL – custom status schema; omitted when default
  - id: todo
    label: Todo
    color: "#8b949e"
    icon: circle
  - id: done
    label: Done
    color: "#3fb950"
    icon: check
    final: true
---

- [ ] Top-level item
  - [ ] Child item ::In Progress
  - [x] Finished child
    Continuation line belonging to the item above.
- [ ] Item with metadata #tag-one #tag-two @due(2026-09-15) ^collapsed
` + "```" + `

## Rules

1. **YAML frontmatter is mandatory** and ` + "`" + `doc-type: strata` + "`" + ` must be present.
   Files without the marker are ignored by the engine.
2. **One bullet per item.** Two spaces of indentation per nesting level, each
   bullet starting with ` + "`" + `- [ ]` + "`" + ` (open) or ` + "`" + `- [x]` + "`" + ` (finished).
3. **Per-bullet tokens follow the title in fixed order:** status marker
   (` + "`" + `::Label` + "`" + `), tags (` + "`" + `#tag` + "`" + `), due date (` + "`" + `@due(YYYY-MM-DD)` + "`" + `), collapsed
   marker (` + "`" + `^collapsed` + "`" + `). The status marker is omitted when the checkbox
   alone determines the status.
4. **Continuation lines** are indented one level deeper than their bullet and
   carry the item's remaining text lines verbatim.
5. **Tags** are lowercase, kebab-case (e.g. ` + "`" + `project-x` + "`" + `).
6. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
7. **Encoding** is UTF-8 with a trailing newline.
8. **Prefer the structured tools** (add_item, set_item_status) over rewriting
   document text by hand; they keep item identity stable across edits.
`
