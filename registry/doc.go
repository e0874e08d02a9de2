// Package registry keeps the named profile connections and tracks which
// one is active.
//
// The registry is a small JSON file (comments and trailing commas are
// accepted when reading) mapping connection names to profile locations,
// plus the name last activated:
//
//	{
//	  // personal profiles
//	  "connections": [
//	    {"name": "docbook", "location": "profiles/docbook.db"},
//	  ],
//	  "active": "docbook",
//	}
//
// Changes rewrite the file atomically. Entries keep the order in which
// they were added. Relative locations are relative to the registry file.
package registry
