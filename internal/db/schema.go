package db

// SchemaSQL defines the tables used for conversation storage.
// The full record is kept as JSON in payload; the other fields exist for
// listing and ordering without decoding it.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS conversation SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS conversation_id ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON conversation TYPE string;
    DEFINE FIELD IF NOT EXISTS updated_at ON conversation TYPE int;
    DEFINE FIELD IF NOT EXISTS message_count ON conversation TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS payload ON conversation TYPE string;
    DEFINE INDEX IF NOT EXISTS conversation_updated ON conversation FIELDS updated_at;

    DEFINE TABLE IF NOT EXISTS user_background SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS informations ON user_background TYPE string;
    DEFINE FIELD IF NOT EXISTS updated_at ON user_background TYPE int;
`
