package createoptions

import "fmt"

// =============================================================================
// Chunk Reassembly
// =============================================================================

const (
	// SettingsKey is the settings property holding the first chunk.
	SettingsKey = "createOptions"

	// MaxChunks bounds the number of chunks, the first one included.
	MaxChunks = 100
)

// ChunkKey returns the settings key of continuation chunk i (1-based).
//
// Example:
//
//	ChunkKey(1)  // "createOptions01"
//	ChunkKey(12) // "createOptions12"
func ChunkKey(i int) string {
	return fmt.Sprintf("%s%02d", SettingsKey, i)
}

// JoinChunks concatenates createOptions with createOptions01,
// createOptions02, ... and stops at the first missing index.
// It returns "" when createOptions itself is absent.
//
// Example:
//
//	JoinChunks(map[string]string{
//	    "createOptions":   `{"Env":`,
//	    "createOptions01": `["A=1"]}`,
//	    "createOptions03": `ignored`,
//	})
//	// `{"Env":["A=1"]}`
func JoinChunks(settings map[string]string) string {
	res, ok := settings[SettingsKey]
	if !ok {
		return ""
	}
	for i := 1; i < MaxChunks; i++ {
		chunk, ok := settings[ChunkKey(i)]
		if !ok {
			break
		}
		res += chunk
	}
	return res
}
