// internal/browser/keys.go
package browser

import (
	"errors"
	"strings"
	"sync"

	"github.com/chromedp/chromedp/kb"
)

// ErrUnknownKey marks a key name or chord that has no key event encoding.
// The executor skips such keys instead of failing the action.
var ErrUnknownKey = errors.New("unknown key")

// keyAliases maps lower-cased key names, including common synonyms emitted by
// models, onto canonical DOM key names.
var keyAliases = map[string]string{
	"enter":      "Enter",
	"return":     "Enter",
	"tab":        "Tab",
	"escape":     "Escape",
	"esc":        "Escape",
	"backspace":  "Backspace",
	"delete":     "Delete",
	"del":        "Delete",
	"insert":     "Insert",
	"home":       "Home",
	"end":        "End",
	"pageup":     "PageUp",
	"pgup":       "PageUp",
	"pagedown":   "PageDown",
	"pgdn":       "PageDown",
	"arrowup":    "ArrowUp",
	"up":         "ArrowUp",
	"arrowdown":  "ArrowDown",
	"down":       "ArrowDown",
	"arrowleft":  "ArrowLeft",
	"left":       "ArrowLeft",
	"arrowright": "ArrowRight",
	"right":      "ArrowRight",
	"space":      "Space",
	"control":    "Control",
	"ctrl":       "Control",
	"shift":      "Shift",
	"alt":        "Alt",
	"option":     "Alt",
	"meta":       "Meta",
	"cmd":        "Meta",
	"command":    "Meta",
	"super":      "Meta",
	"win":        "Meta",
	"f1":         "F1",
	"f2":         "F2",
	"f3":         "F3",
	"f4":         "F4",
	"f5":         "F5",
	"f6":         "F6",
	"f7":         "F7",
	"f8":         "F8",
	"f9":         "F9",
	"f10":        "F10",
	"f11":        "F11",
	"f12":        "F12",
}

// modifierKeys are the canonical names that can prefix a chord.
var modifierKeys = map[string]bool{
	"Control": true,
	"Shift":   true,
	"Alt":     true,
	"Meta":    true,
}

// CanonicalKey normalizes a key name or a "+" joined chord. Named keys are
// matched case-insensitively through the alias table; single characters and
// unrecognized names are kept as given.
func CanonicalKey(key string) string {
	parts := SplitChord(key)
	for i, p := range parts {
		parts[i] = canonicalSingle(p)
	}
	return strings.Join(parts, "+")
}

func canonicalSingle(key string) string {
	if len([]rune(key)) == 1 {
		return key
	}
	if canonical, ok := keyAliases[strings.ToLower(strings.TrimSpace(key))]; ok {
		return canonical
	}
	return strings.TrimSpace(key)
}

// SplitChord splits "Control+Shift+T" into its parts. A literal "+" key is
// kept, so "Control++" yields ["Control", "+"].
func SplitChord(key string) []string {
	if len([]rune(key)) == 1 {
		return []string{key}
	}
	trailingPlus := strings.HasSuffix(key, "++")
	if trailingPlus {
		key = strings.TrimSuffix(key, "++")
	}

	var parts []string
	for _, p := range strings.Split(key, "+") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if trailingPlus {
		parts = append(parts, "+")
	}
	return parts
}

var (
	keyIndexOnce sync.Once
	keyIndex     map[string]rune
)

// layoutKeys indexes the kb layout table by lower-cased DOM key value and by
// physical key code. A key value wins over a code of the same name; among
// runes sharing a code the unshifted one is chosen.
func layoutKeys() map[string]rune {
	keyIndexOnce.Do(func() {
		byKey := make(map[string]rune)
		byCode := make(map[string]rune)
		for r, k := range kb.Keys {
			if len([]rune(k.Key)) > 1 {
				name := strings.ToLower(k.Key)
				if cur, ok := byKey[name]; !ok || r < cur {
					byKey[name] = r
				}
			}
			if k.Code == "" {
				continue
			}
			code := strings.ToLower(k.Code)
			cur, ok := byCode[code]
			if !ok || preferForCode(r, cur) {
				byCode[code] = r
			}
		}
		for name, r := range byKey {
			byCode[name] = r
		}
		keyIndex = byCode
	})
	return keyIndex
}

func preferForCode(r, cur rune) bool {
	rShift, curShift := kb.Keys[r].Shift, kb.Keys[cur].Shift
	if rShift != curShift {
		return !rShift
	}
	return r < cur
}

// resolveKey returns the rune kb.Encode expects for a single character or a
// key name such as "Enter", "CapsLock", "F13" or "KeyA".
func resolveKey(name string) (rune, bool) {
	if r := []rune(name); len(r) == 1 {
		return r[0], true
	}
	r, ok := layoutKeys()[strings.ToLower(strings.TrimSpace(name))]
	return r, ok
}

// IsModifier reports whether a canonical key name is a chord modifier.
func IsModifier(key string) bool {
	return modifierKeys[key]
}
