// Package model provides the canonical entity types for Satchel.
//
// This package contains type definitions, the error taxonomy, and title
// normalization only. All other internal packages import model; model
// imports nothing internal. This keeps it the foundational layer with no
// circular dependencies.
//
// Key design constraints:
//   - Revision IDs are int64 logical sequence numbers, never wall-clock
//     timestamps. They are allocated by the store inside the same
//     transaction as the row they label.
//   - Tiddler titles are NFC-normalized before they participate in
//     identity anywhere in the system.
//   - All JSON tags use snake_case.
package model
