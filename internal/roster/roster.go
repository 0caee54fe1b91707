// Package roster reads the platform user export (login id → platform user id).
//
// The mapping is loaded at the start of every run and its absence aborts the
// pipeline, but recipient resolution deliberately does not consult it: users
// are always resolved through a live search by identifier.
package roster

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Load parses the roster CSV. The header must contain login_id and user_id
// columns; other columns are ignored. Login ids are lowercased. A UTF-8 BOM
// on the first record is tolerated, since the export tool writes one.
func Load(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("roster: open %s: %w", path, err)
	}
	defer f.Close()

	return parse(f)
}

func parse(r io.Reader) (map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("roster: read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	loginCol, userCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "login_id":
			loginCol = i
		case "user_id":
			userCol = i
		}
	}
	if loginCol < 0 || userCol < 0 {
		return nil, fmt.Errorf("roster: header missing login_id/user_id columns: %v", header)
	}

	users := map[string]string{}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("roster: read record: %w", err)
		}
		if loginCol >= len(rec) || userCol >= len(rec) {
			continue
		}
		login := strings.ToLower(strings.TrimSpace(rec[loginCol]))
		if login == "" {
			continue
		}
		users[login] = strings.TrimSpace(rec[userCol])
	}

	return users, nil
}
