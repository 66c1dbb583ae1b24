package team

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/orquestra-ai/orquestra/pkg/types"
)

// ErrTeamNotFound is returned when the runtime has no state for a name.
var ErrTeamNotFound = errors.New("team not found")

// RuntimeClient reads team state from the external team runtime. The
// runtime owns the state; this system only observes snapshots.
type RuntimeClient interface {
	ListTeams(ctx context.Context) ([]string, error)
	Snapshot(ctx context.Context, name string) (*types.TeamSnapshot, error)
}

// FileRuntime reads team state from the runtime's shared directory:
//
//	<dir>/<team>/config.json      roster
//	<dir>/<team>/tasks.json       task board
//	<dir>/<team>/inbox/<member>.json
//
// Each file is written atomically by the runtime, so a plain read of any
// one file is consistent; the snapshot as a whole is best-effort.
type FileRuntime struct {
	dir string
}

// NewFileRuntime creates a FileRuntime over the runtime's directory.
func NewFileRuntime(dir string) *FileRuntime {
	return &FileRuntime{dir: dir}
}

// Dir returns the watched runtime directory.
func (r *FileRuntime) Dir() string { return r.dir }

type teamConfig struct {
	Name    string             `json:"name"`
	Members []types.TeamMember `json:"members"`
}

// ListTeams returns the team names present in the runtime directory.
func (r *FileRuntime) ListTeams(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list teams: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Snapshot assembles the full snapshot for one team.
func (r *FileRuntime) Snapshot(ctx context.Context, name string) (*types.TeamSnapshot, error) {
	teamDir := filepath.Join(r.dir, name)

	var cfg teamConfig
	if err := readJSON(filepath.Join(teamDir, "config.json"), &cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrTeamNotFound, name)
		}
		return nil, fmt.Errorf("read team config %s: %w", name, err)
	}

	snap := &types.TeamSnapshot{Name: name, Members: cfg.Members}

	if err := readJSON(filepath.Join(teamDir, "tasks.json"), &snap.Tasks); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read team tasks %s: %w", name, err)
	}

	inboxes, err := r.readInboxes(filepath.Join(teamDir, "inbox"))
	if err != nil {
		return nil, fmt.Errorf("read team inboxes %s: %w", name, err)
	}
	snap.Inboxes = inboxes
	return snap, nil
}

func (r *FileRuntime) readInboxes(dir string) ([]types.MemberInbox, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var inboxes []types.MemberInbox
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		var messages []types.InboxMessage
		if err := readJSON(filepath.Join(dir, name), &messages); err != nil {
			// A half-written inbox is picked up on the next poll.
			continue
		}
		inboxes = append(inboxes, types.MemberInbox{
			Member:   strings.TrimSuffix(name, ".json"),
			Messages: messages,
		})
	}
	sort.Slice(inboxes, func(i, j int) bool { return inboxes[i].Member < inboxes[j].Member })
	return inboxes, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
