// Package contacts resolves phone numbers to display names from the
// vCard files the daemon syncs per device.
package contacts

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Contact is one entry with a name and its phone numbers.
type Contact struct {
	Name         string
	PhoneNumbers []string
}

// Lookup maps normalized phone numbers to contact names. Safe for
// concurrent use; Reload swaps the mapping atomically.
type Lookup struct {
	mu          sync.RWMutex
	logger      *slog.Logger
	dir         string
	phoneToName map[string]string
	contacts    []Contact
}

// NewLookup creates a lookup reading vCard files from dir. The
// directory layout matches the daemon's sync location:
// <root>/kdeconnect-<device-id>/*.vcf.
func NewLookup(dir string, logger *slog.Logger) *Lookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{
		logger:      logger,
		dir:         dir,
		phoneToName: make(map[string]string),
	}
}

// DeviceDir returns the vCard directory for one device under root.
func DeviceDir(root, deviceID string) string {
	return filepath.Join(root, "kdeconnect-"+deviceID)
}

// Dir returns the directory this lookup reads from.
func (l *Lookup) Dir() string {
	return l.dir
}

// Reload re-reads all vCard files. Missing directories are not an
// error: the daemon simply has not synced contacts yet.
func (l *Lookup) Reload() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			l.logger.Debug("vcard directory absent", "dir", l.dir)
			return nil
		}
		return err
	}

	phoneToName := make(map[string]string)
	var contacts []Contact

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".vcf") {
			continue
		}
		contact, ok := parseVCardFile(filepath.Join(l.dir, entry.Name()))
		if !ok {
			continue
		}
		for _, phone := range contact.PhoneNumbers {
			if norm := NormalizeNumber(phone); norm != "" {
				phoneToName[norm] = contact.Name
			}
		}
		contacts = append(contacts, contact)
	}

	sort.Slice(contacts, func(i, j int) bool {
		return strings.ToLower(contacts[i].Name) < strings.ToLower(contacts[j].Name)
	})

	l.mu.Lock()
	l.phoneToName = phoneToName
	l.contacts = contacts
	l.mu.Unlock()

	l.logger.Info("loaded contacts", "dir", l.dir,
		"contacts", len(contacts), "numbers", len(phoneToName))
	return nil
}

// Resolve returns the display name for a phone number. Implements the
// conversation model's resolver contract; absence means the caller
// shows the raw number.
func (l *Lookup) Resolve(phoneNumber string) (string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	name, ok := l.phoneToName[NormalizeNumber(phoneNumber)]
	if !ok || strings.TrimSpace(name) == "" {
		return "", false
	}
	return name, true
}

// NameOrNumber resolves the number, falling back to the number itself.
func (l *Lookup) NameOrNumber(phoneNumber string) string {
	if name, ok := l.Resolve(phoneNumber); ok {
		return name
	}
	return phoneNumber
}

// SearchByName returns up to limit contacts whose name contains the
// query, case-insensitively.
func (l *Lookup) SearchByName(query string, limit int) []Contact {
	if query == "" {
		return nil
	}
	q := strings.ToLower(query)

	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Contact
	for _, c := range l.contacts {
		if strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, c)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

// Len returns the number of phone mappings loaded.
func (l *Lookup) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.phoneToName)
}

// NormalizeNumber reduces a phone number to its digits. US numbers
// written with a leading country code collapse to ten digits so +1,
// 1-prefixed, and bare forms compare equal.
func NormalizeNumber(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 11 && digits[0] == '1' {
		return digits[1:]
	}
	return digits
}

// parseVCardFile extracts the FN and TEL fields from one vCard file.
// Entries without a name or without any phone number are skipped.
func parseVCardFile(path string) (Contact, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Contact{}, false
	}
	return parseVCard(string(data))
}

func parseVCard(content string) (Contact, bool) {
	var contact Contact
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "FN:"):
			contact.Name = strings.TrimSpace(line[len("FN:"):])
		case strings.HasPrefix(line, "TEL"):
			// TEL:..., TEL;CELL:..., TEL;TYPE=CELL:...
			idx := strings.Index(line, ":")
			if idx < 0 {
				continue
			}
			number := strings.TrimSpace(line[idx+1:])
			if number != "" && !strings.Contains(number, "=") {
				contact.PhoneNumbers = append(contact.PhoneNumbers, number)
			}
		}
	}
	if contact.Name == "" || len(contact.PhoneNumbers) == 0 {
		return Contact{}, false
	}
	return contact, true
}
