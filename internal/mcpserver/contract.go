package mcpserver

// CalculatorContract describes numeric notes and calculator notes for LLM
// consumers creating or editing board items.
const CalculatorContract = `# Tally Calculator Notes Contract

## Numeric notes

- An item of type ` + "`" + `numeric-note` + "`" + ` whose content, after trimming whitespace,
  is a single decimal number: ` + "`" + `42` + "`" + `, ` + "`" + `-3.5` + "`" + `, ` + "`" + `1e3` + "`" + `.
- Anything else (text, two numbers, an empty note, NaN, Inf) is not numeric and is
  ignored by calculations. Sticky notes are never numeric.

## Calculator notes

- Created with ` + "`" + `create_calculation` + "`" + ` from at least **two** numeric notes and an
  operation: ` + "`" + `sum` + "`" + ` (also ` + "`" + `+` + "`" + `) or ` + "`" + `product` + "`" + ` (also ` + "`" + `×` + "`" + `, ` + "`" + `*` + "`" + `).
- The calculator note is itself a numeric note placed below its sources. Its content is
  the result rounded to 6 decimal places with trailing zeros removed
  (` + "`" + `1.1 + 2.2` + "`" + ` gives ` + "`" + `3.3` + "`" + `, ` + "`" + `4 × 6` + "`" + ` gives ` + "`" + `24` + "`" + `).

## Keeping results current

- Editing a source note recomputes every calculator note that depends on it.
- A source that is deleted, or no longer numeric, is left out of the next recompute.
- Deleting a source does not by itself trigger a recompute; the result updates the next
  time one of the remaining sources changes.
- When none of the sources is usable any more the calculator note is deleted.
- Deleting a calculator note stops it being tracked. Editing its content by hand is
  overwritten on the next recompute.
- Calculator notes may be sources of other calculator notes; a recompute publishes a
  change of its own, so chained results follow. Do not build cycles.

## Example

` + "```" + `
create_item content=4           -> created: a
create_item content=6           -> created: b
create_calculation operation=sum item_ids=[a, b]   -> result "10"
update_item id=a content=5      -> calculator note becomes "11"
` + "```" + `
`
