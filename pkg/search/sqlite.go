// ABOUTME: SQLite FTS5 search index backend
// ABOUTME: Falls back to in-process token matching when FTS5 is unavailable

package search

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/calderhof/revstore/pkg/node"
)

// SQLiteIndex persists one row per (path, revision) with the all /
// old_all text fields, plus a session-scoped working-area table.
type SQLiteIndex struct {
	db     *sql.DB
	useFTS bool
}

// NewSQLiteIndex opens or creates the index database.
func NewSQLiteIndex(dbPath string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	idx := &SQLiteIndex{db: db}
	if err := idx.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *SQLiteIndex) init() error {
	idx.useFTS = idx.checkFTS5Support()

	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		path TEXT NOT NULL,
		revision_key TEXT NOT NULL,
		revision TEXT NOT NULL,
		node_type TEXT NOT NULL,
		state INTEGER NOT NULL,
		all_text TEXT NOT NULL,
		old_all_text TEXT NOT NULL,
		PRIMARY KEY (path, revision_key)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_revision ON entries(revision_key);

	CREATE TABLE IF NOT EXISTS wa_entries (
		session_id TEXT NOT NULL,
		path TEXT NOT NULL,
		all_text TEXT NOT NULL,
		PRIMARY KEY (session_id, path)
	);
	`
	if _, err := idx.db.Exec(schema); err != nil {
		return err
	}

	if idx.useFTS {
		ftsSchema := `
		CREATE VIRTUAL TABLE IF NOT EXISTS entries_fts USING fts5(
			path UNINDEXED,
			revision_key UNINDEXED,
			all_text,
			old_all_text,
			tokenize = 'unicode61'
		);
		`
		if _, err := idx.db.Exec(ftsSchema); err != nil {
			idx.useFTS = false
		}
	}
	return nil
}

func (idx *SQLiteIndex) checkFTS5Support() bool {
	_, err := idx.db.Exec("CREATE VIRTUAL TABLE IF NOT EXISTS fts5_probe USING fts5(content)")
	if err != nil {
		return false
	}
	_, _ = idx.db.Exec("DROP TABLE IF EXISTS fts5_probe")
	return true
}

func (idx *SQLiteIndex) AddEntry(ctx context.Context, entry node.SearchEntry) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := idx.addEntryTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit()
}

func (idx *SQLiteIndex) AddEntries(ctx context.Context, entries []node.SearchEntry) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	for _, entry := range entries {
		if err := idx.addEntryTx(ctx, tx, entry); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (idx *SQLiteIndex) addEntryTx(ctx context.Context, tx *sql.Tx, entry node.SearchEntry) error {
	path := entry.Path.String()
	revKey := revisionKey(entry.Revision)
	all := currentText(entry)
	oldAll := priorText(entry)

	// Idempotent per (path, revision) so commit replays are safe.
	if idx.useFTS {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM entries_fts WHERE path = ? AND revision_key = ?", path, revKey); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entries_fts (path, revision_key, all_text, old_all_text)
			VALUES (?, ?, ?, ?)
		`, path, revKey, all, oldAll); err != nil {
			return err
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO entries (path, revision_key, revision, node_type, state, all_text, old_all_text)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, path, revKey, entry.Revision.String(), entry.NodeType.String(), int(entry.State), all, oldAll)
	return err
}

func (idx *SQLiteIndex) RemoveEntry(ctx context.Context, path node.Path, revision node.RevisionNumber) error {
	p := path.String()
	revKey := revisionKey(revision)
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if idx.useFTS {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM entries_fts WHERE path = ? AND revision_key = ?", p, revKey); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM entries WHERE path = ? AND revision_key = ?", p, revKey); err != nil {
		return err
	}
	return tx.Commit()
}

func (idx *SQLiteIndex) AddWorkingAreaEntry(ctx context.Context, sessionID string, entry node.SearchEntry) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO wa_entries (session_id, path, all_text)
		VALUES (?, ?, ?)
	`, sessionID, entry.Path.String(), currentText(entry))
	return err
}

func (idx *SQLiteIndex) RemoveWorkingAreaEntries(ctx context.Context, sessionID string) error {
	_, err := idx.db.ExecContext(ctx, "DELETE FROM wa_entries WHERE session_id = ?", sessionID)
	return err
}

func (idx *SQLiteIndex) Search(ctx context.Context, q Query) ([]node.Path, error) {
	var matched map[node.Path]bool
	var err error
	if idx.useFTS {
		matched, err = idx.searchCommittedFTS(ctx, q)
	} else {
		matched, err = idx.searchCommittedScan(ctx, q)
	}
	if err != nil {
		return nil, err
	}

	// Shadow entries replace the committed rows for their paths in the
	// owning session's view.
	if q.SessionID != "" {
		shadow, err := idx.sessionShadow(ctx, q.SessionID)
		if err != nil {
			return nil, err
		}
		for raw, all := range shadow {
			p, perr := node.ParsePath(raw)
			if perr != nil {
				return nil, perr
			}
			delete(matched, p)
			if matchText(all, q.Text) {
				matched[p] = true
			}
		}
	}

	paths := make([]node.Path, 0, len(matched))
	for p := range matched {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i].String() < paths[j].String() })
	return page(paths, q.Start, q.Count), nil
}

// searchCommittedFTS runs the blocking algorithm with FTS5: match on
// all or old_all under the revision bound, keep the top revision per
// path, then require that top row to match on all alone.
func (idx *SQLiteIndex) searchCommittedFTS(ctx context.Context, q Query) (map[node.Path]bool, error) {
	expr := ftsExpr(q.Text)
	if expr == "" {
		// FTS5 rejects an empty MATCH expression. A query with no
		// tokens matches nothing.
		return map[node.Path]bool{}, nil
	}
	revKey := revisionKey(q.Revision)
	bothMatch := "{all_text old_all_text} : " + expr

	rows, err := idx.db.QueryContext(ctx, `
		SELECT path, MAX(revision_key)
		FROM entries_fts
		WHERE entries_fts MATCH ? AND revision_key <= ?
		GROUP BY path
	`, bothMatch, revKey)
	if err != nil {
		return nil, fmt.Errorf("search candidates: %w", err)
	}
	type candidate struct {
		path   string
		revKey string
	}
	var candidates []candidate
	for rows.Next() {
		var c candidate
		if err := rows.Scan(&c.path, &c.revKey); err != nil {
			_ = rows.Close()
			return nil, err
		}
		candidates = append(candidates, c)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	currentMatch := "all_text : " + expr
	matched := map[node.Path]bool{}
	for _, c := range candidates {
		var count int
		err := idx.db.QueryRowContext(ctx, `
			SELECT COUNT(*)
			FROM entries_fts
			WHERE entries_fts MATCH ? AND path = ? AND revision_key = ?
		`, currentMatch, c.path, c.revKey).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("search recheck %s: %w", c.path, err)
		}
		if count == 0 {
			continue
		}

		var state int
		err = idx.db.QueryRowContext(ctx,
			"SELECT state FROM entries WHERE path = ? AND revision_key = ?",
			c.path, c.revKey).Scan(&state)
		if err != nil {
			return nil, fmt.Errorf("search state %s: %w", c.path, err)
		}
		if state != int(node.StateNormal) {
			continue
		}

		p, perr := node.ParsePath(c.path)
		if perr != nil {
			return nil, perr
		}
		matched[p] = true
	}
	return matched, nil
}

// searchCommittedScan is the FTS-less fallback: scan rows under the
// revision bound and apply the same algorithm in process.
func (idx *SQLiteIndex) searchCommittedScan(ctx context.Context, q Query) (map[node.Path]bool, error) {
	rows, err := idx.db.QueryContext(ctx, `
		SELECT path, revision_key, state, all_text, old_all_text
		FROM entries
		WHERE revision_key <= ?
		ORDER BY path, revision_key
	`, revisionKey(q.Revision))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type top struct {
		revKey string
		state  int
		all    string
		oldAll string
	}
	tops := map[string]top{}
	for rows.Next() {
		var path, revKey, all, oldAll string
		var state int
		if err := rows.Scan(&path, &revKey, &state, &all, &oldAll); err != nil {
			return nil, err
		}
		if !matchText(all, q.Text) && !matchText(oldAll, q.Text) {
			continue
		}
		if best, ok := tops[path]; !ok || best.revKey < revKey {
			tops[path] = top{revKey: revKey, state: state, all: all, oldAll: oldAll}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	matched := map[node.Path]bool{}
	for path, t := range tops {
		if t.state != int(node.StateNormal) || !matchText(t.all, q.Text) {
			continue
		}
		p, perr := node.ParsePath(path)
		if perr != nil {
			return nil, perr
		}
		matched[p] = true
	}
	return matched, nil
}

func (idx *SQLiteIndex) sessionShadow(ctx context.Context, sessionID string) (map[string]string, error) {
	rows, err := idx.db.QueryContext(ctx,
		"SELECT path, all_text FROM wa_entries WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shadow := map[string]string{}
	for rows.Next() {
		var path, all string
		if err := rows.Scan(&path, &all); err != nil {
			return nil, err
		}
		shadow[path] = all
	}
	return shadow, rows.Err()
}

func (idx *SQLiteIndex) Close() error {
	return idx.db.Close()
}

// ftsExpr quotes each query token for FTS5; tokens combine with the
// implicit AND.
func ftsExpr(query string) string {
	tokens := strings.Fields(query)
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		quoted = append(quoted, `"`+strings.ReplaceAll(tok, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
