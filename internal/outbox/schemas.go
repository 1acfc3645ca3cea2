package outbox

const quoteIssuedSchema = `{
  "type": "object",
  "title": "QuoteIssued",
  "properties": {
    "quote_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "animal_id": {"type": "string"},
    "premium": {"type": "number"},
    "sum_insured": {"type": "number"},
    "segment": {"type": "string"},
    "issued_at": {"type": "string", "format": "date-time"}
  },
  "required": ["quote_id", "tenant_id", "animal_id", "premium", "sum_insured", "segment", "issued_at"],
  "additionalProperties": false
}`

const quoteSupersededSchema = `{
  "type": "object",
  "title": "QuoteSuperseded",
  "properties": {
    "quote_id": {"type": "string"},
    "tenant_id": {"type": "string"},
    "animal_id": {"type": "string"},
    "superseded_by": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["quote_id", "tenant_id", "animal_id", "superseded_by", "occurred_at"],
  "additionalProperties": false
}`
