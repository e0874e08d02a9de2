/*
Package session ties the xmlmill components together into one editing
session.

A Session owns the notification Bus, the Schema Store, the connection
Registry, the Query facade and the document tree. Sessions are created
with New from a Config, which is normally read with LoadConfig from a
JSONC file and otherwise defaults to DefaultConfig.

Opening documents

OpenDocument parses a document, checks that its root element is a known
root of the active profile, reconciles the whole document against the
profile in one transaction, and loads it as the session's document.
ImportDocument skips the known-root check, which is how a profile learns
its first document types. Documents larger than
Config.LargeDocumentWarning are logged; documents larger than
Config.LargeDocumentLimit are refused.

A failed reconciliation leaves both the profile and the loaded document
as they were; the error is returned and recorded in Errors, and the
session remains usable.
*/
package session
