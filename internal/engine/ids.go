// Package engine is the change-id based version-control engine weft drives.
//
// Revisions carry two identities: a ChangeID that survives rewrites and a
// content-derived CommitID. Every write to the repository is recorded as an
// Operation holding a full View of the refs; operations form their own DAG
// and concurrent operations are merged on load.
//
// Objects live in a content-addressed Store. This package ships an in-memory
// store; internal/engine/sqlitestore persists one on disk.
package engine

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
)

// CommitID is the 40-character lowercase hex hash of a commit's content.
type CommitID string

// ChangeID is the 32-character "reverse hex" identity of a change.
// The alphabet z..k stands for 0..f so change ids never look like commit ids.
type ChangeID string

// TreeID identifies a tree object.
type TreeID string

// BlobID identifies a file content object.
type BlobID string

// OperationID identifies an operation.
type OperationID string

const (
	commitIDLen    = 40
	changeIDLen    = 32
	operationIDLen = 64
)

// RootCommitID is the virtual commit every history descends from.
var RootCommitID = CommitID(strings.Repeat("0", commitIDLen))

// RootChangeID is the change id of the root commit.
var RootChangeID = ChangeID(strings.Repeat("z", changeIDLen))

// RootOperationID is the operation every operation history descends from.
var RootOperationID = OperationID(strings.Repeat("0", operationIDLen))

func (id CommitID) String() string    { return string(id) }
func (id ChangeID) String() string    { return string(id) }
func (id OperationID) String() string { return string(id) }

// Short returns the first 12 characters, for log lines and op descriptions.
func (id CommitID) Short() string    { return shorten(string(id), 12) }
func (id ChangeID) Short() string    { return shorten(string(id), 12) }
func (id OperationID) Short() string { return shorten(string(id), 12) }

func shorten(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

const (
	forwardHex = "0123456789abcdef"
	reverseHex = "zyxwvutsrqponmlk"
)

// EncodeReverseHex encodes bytes in the change-id alphabet.
func EncodeReverseHex(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) * 2)
	for _, c := range b {
		sb.WriteByte(reverseHex[c>>4])
		sb.WriteByte(reverseHex[c&0x0f])
	}
	return sb.String()
}

// DecodeReverseHex decodes a change-id string. ok is false for characters
// outside the alphabet or an odd length.
func DecodeReverseHex(s string) (b []byte, ok bool) {
	if len(s)%2 != 0 {
		return nil, false
	}
	var fwd strings.Builder
	for i := 0; i < len(s); i++ {
		j := strings.IndexByte(reverseHex, s[i])
		if j < 0 {
			return nil, false
		}
		fwd.WriteByte(forwardHex[j])
	}
	out, err := hex.DecodeString(fwd.String())
	return out, err == nil
}

// IsChangeIDPrefix reports whether s consists only of change-id characters.
func IsChangeIDPrefix(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'k' || s[i] > 'z' {
			return false
		}
	}
	return true
}

// IsCommitIDPrefix reports whether s consists only of lowercase hex characters.
func IsCommitIDPrefix(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// NewChangeID returns a random change id.
func NewChangeID() ChangeID {
	u := uuid.New()
	return ChangeID(EncodeReverseHex(u[:]))
}

// ChangeIDFromGit derives a stable change id for a commit imported from git,
// so that importing the same git commit twice yields the same change.
func ChangeIDFromGit(sha string) ChangeID {
	sum := sha1.Sum([]byte("weft-change:" + sha))
	return ChangeID(EncodeReverseHex(sum[:16]))
}

// NewWorkspaceID returns a random workspace id.
func NewWorkspaceID() string {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uuid.NewString()
	}
	return hex.EncodeToString(b[:])
}

func hashJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic("engine: object not serializable: " + err.Error())
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

func hashJSON256(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic("engine: object not serializable: " + err.Error())
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashBlob returns the id of a blob with the given content.
func HashBlob(data []byte) BlobID {
	h := sha1.New()
	h.Write([]byte("blob\x00"))
	h.Write(data)
	return BlobID(hex.EncodeToString(h.Sum(nil)))
}
