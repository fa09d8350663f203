package auth

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
)

// The session cache lets a restart inside the session window skip the
// login exchange. It holds only the opaque session-id and its timestamps,
// never credentials. Corrupt or expired cache files are ignored.

func (m *Manager) loadSession() (Session, bool) {
	if m.cacheFile == "" {
		return Session{}, false
	}
	data, err := os.ReadFile(filepath.Clean(m.cacheFile))
	if err != nil {
		return Session{}, false
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		log.Printf("auth: ignoring corrupt session cache %s: %v", m.cacheFile, err)
		return Session{}, false
	}
	if !s.Valid(m.now()) {
		return Session{}, false
	}
	return s, true
}

func (m *Manager) saveSession(s Session) {
	if m.cacheFile == "" {
		return
	}
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(m.cacheFile), 0o755); err != nil {
		log.Printf("auth: session cache dir: %v", err)
		return
	}
	if err := os.WriteFile(m.cacheFile, data, 0o600); err != nil {
		log.Printf("auth: save session cache: %v", err)
	}
}

func (m *Manager) clearSessionCache() {
	if m.cacheFile == "" {
		return
	}
	_ = os.Remove(m.cacheFile)
}
