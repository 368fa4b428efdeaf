// Package assets reads the avatar asset tree: faces, modes and expression
// rules. The tree is consumed read-only and exposed as a lookup Table keyed
// by mode and expression.
package assets

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"keyavatar/internal/avatar"
	"keyavatar/internal/input"
	"keyavatar/internal/normalize"
)

// DefaultModeName is the built-in mode used when the tree defines none.
const DefaultModeName = "default"

// Mode is one loaded mode.
type Mode struct {
	Name   string
	Dir    string
	Config ModeConfig

	// Zones overrides the key zone table while the mode is active
	Zones map[string][]string

	parts     []string
	exprParts map[avatar.Expression][]string
	keyParts  map[uint16]string
}

// Table is the loaded asset tree.
type Table struct {
	Root  string
	Faces []Face
	Rules avatar.Rules

	modes     []*Mode
	byName    map[string]*Mode
	exprCfg   ExpressionConfig
	exprFaces map[avatar.Expression]string
	disabled  []string
}

// Load reads the asset tree at root. It never fails as a whole: every problem
// is returned in errs and degrades to a default. A malformed mode is disabled;
// without any usable mode the table holds a built-in empty default mode.
func Load(root string) (*Table, []error) {
	t := &Table{
		Root:      root,
		Rules:     avatar.DefaultRules(),
		byName:    make(map[string]*Mode),
		exprFaces: make(map[avatar.Expression]string),
	}
	var errs []error

	if root != "" {
		if err := t.loadFaces(); err != nil {
			errs = append(errs, err)
		}
		if err := t.loadExpressions(); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, t.loadModes()...)
	}

	if len(t.modes) == 0 {
		if root != "" {
			errs = append(errs, &ConfigError{Path: filepath.Join(root, "mode"), Err: ErrNoModes})
		}
		m := &Mode{Name: DefaultModeName, exprParts: map[avatar.Expression][]string{}, keyParts: map[uint16]string{}}
		m.parts = t.modeParts(m)
		t.addMode(m)
	}
	return t, errs
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func (t *Table) loadFaces() error {
	path := filepath.Join(t.Root, "face", "config.json")
	var fc FaceConfig
	if err := readJSON(path, &fc); err != nil {
		return &ConfigError{Path: path, Err: err}
	}
	if len(fc.HotKey) != len(fc.FaceImageName) {
		return &ConfigError{Path: path, Err: fmt.Errorf("HotKey count (%d) != FaceImageName count (%d)", len(fc.HotKey), len(fc.FaceImageName))}
	}

	seen := map[string]bool{}
	for i, img := range fc.FaceImageName {
		id := faceID(img)
		if id == "" || seen[id] {
			return &ConfigError{Path: path, Err: fmt.Errorf("face image %q: duplicate or empty id", img)}
		}
		seen[id] = true
		t.Faces = append(t.Faces, Face{ID: id, Image: img, HotKey: fc.HotKey[i]})
	}
	return nil
}

// faceID derives the face id from the image file name stem.
func faceID(image string) string {
	base := filepath.Base(image)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

func (t *Table) loadExpressions() error {
	path := filepath.Join(t.Root, "expression", "config.json")
	var ec ExpressionConfig
	if err := readJSON(path, &ec); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &ConfigError{Path: path, Err: err}
	}

	rules := applyRules(t.Rules, ec)
	if err := checkRules(rules); err != nil {
		return &ConfigError{Path: path, Err: err}
	}

	faces := make(map[avatar.Expression]string, len(ec.Faces))
	for name, id := range ec.Faces {
		expr, err := avatar.ParseExpression(name)
		if err != nil {
			return &ConfigError{Path: path, Err: err}
		}
		faces[expr] = strings.ToLower(id)
	}

	t.Rules = rules
	t.exprCfg = ec
	t.exprFaces = faces
	return nil
}

func applyRules(rules avatar.Rules, ec ExpressionConfig) avatar.Rules {
	if ec.HappyRate != nil {
		rules.HappyRate = *ec.HappyRate
	}
	if ec.SadRate != nil {
		rules.SadRate = *ec.SadRate
	}
	if ec.SurprisedZones != nil {
		rules.SurprisedZones = *ec.SurprisedZones
	}
	if ec.IdleTimeoutMS != nil {
		rules.IdleTimeout = time.Duration(*ec.IdleTimeoutMS) * time.Millisecond
	}
	return rules
}

func checkRules(r avatar.Rules) error {
	if r.HappyRate < 0 || r.SadRate < 0 || r.SurprisedZones < 0 || r.IdleTimeout < 0 {
		return fmt.Errorf("negative threshold")
	}
	if r.HappyRate > 0 && r.SadRate > r.HappyRate {
		return fmt.Errorf("SadRate %.2f above HappyRate %.2f", r.SadRate, r.HappyRate)
	}
	return nil
}

// RulesOver returns base with the thresholds set by the asset tree applied.
func (t *Table) RulesOver(base avatar.Rules) avatar.Rules {
	rules := applyRules(base, t.exprCfg)
	if checkRules(rules) != nil {
		return t.Rules
	}
	return rules
}

func (t *Table) loadModes() []error {
	path := filepath.Join(t.Root, "mode", "config.json")
	var list ModeList
	if err := readJSON(path, &list); err != nil {
		return []error{&ConfigError{Path: path, Err: err}}
	}

	var errs []error
	for _, name := range list.ModelPath {
		if _, dup := t.byName[name]; dup {
			errs = append(errs, &ConfigError{Path: path, Mode: name, Err: fmt.Errorf("listed twice")})
			continue
		}
		m, err := t.loadMode(name)
		if err != nil {
			t.disabled = append(t.disabled, name)
			errs = append(errs, err)
			continue
		}
		t.addMode(m)
	}
	return errs
}

func (t *Table) loadMode(name string) (*Mode, error) {
	dir := filepath.Join(t.Root, "mode", name)
	path := filepath.Join(dir, "config.json")
	fail := func(err error) (*Mode, error) {
		return nil, &ConfigError{Path: path, Mode: name, Err: fmt.Errorf("%w: %w", ErrModeDisabled, err)}
	}

	var cfg ModeConfig
	if err := readJSON(path, &cfg); err != nil {
		return fail(err)
	}
	if cfg.BackgroundImageName == "" {
		return fail(fmt.Errorf("%w: BackgroundImageName", ErrMissingField))
	}
	if cfg.CatBackgroundImageName == "" {
		return fail(fmt.Errorf("%w: CatBackgroundImageName", ErrMissingField))
	}

	m := &Mode{
		Name:      name,
		Dir:       dir,
		Config:    cfg,
		exprParts: make(map[avatar.Expression][]string),
		keyParts:  make(map[uint16]string),
	}

	for exprName, parts := range cfg.ExpressionParts {
		expr, err := avatar.ParseExpression(exprName)
		if err != nil {
			return fail(err)
		}
		m.exprParts[expr] = normalizeParts(parts)
	}

	if len(cfg.KeyUse) > 0 {
		var left, right []string
		for _, key := range cfg.KeyUse {
			codes, err := input.KeyCodes(key)
			if err != nil {
				return fail(fmt.Errorf("KeyUse: %w", err))
			}
			for _, code := range codes {
				m.keyParts[code] = "part.key." + strings.ToLower(key)
			}
			switch strings.ToLower(key) {
			case "up", "down", "left", "right":
				right = append(right, key)
			default:
				left = append(left, key)
			}
		}
		m.Zones = map[string][]string{}
		if len(left) > 0 {
			m.Zones[normalize.ZoneLeftHand] = left
		}
		if len(right) > 0 {
			m.Zones[normalize.ZoneRightHand] = right
		}
	}

	m.parts = t.modeParts(m)
	return m, nil
}

func normalizeParts(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "part.") {
			p = "part." + p
		}
		out = append(out, p)
	}
	return out
}

// modeParts lists every part parameter a mode can show.
func (t *Table) modeParts(m *Mode) []string {
	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}

	if m.Config.BackgroundImageName != "" {
		add("part.background")
	}
	if m.Config.CatBackgroundImageName != "" {
		add("part.body")
	}
	for _, f := range t.Faces {
		add(f.Part())
	}
	for _, expr := range avatar.Expressions {
		for _, p := range m.exprParts[expr] {
			add(p)
		}
	}
	keys := make([]string, 0, len(m.keyParts))
	for _, p := range m.keyParts {
		keys = append(keys, p)
	}
	sort.Strings(keys)
	for _, p := range keys {
		add(p)
	}
	return out
}

func (t *Table) addMode(m *Mode) {
	t.modes = append(t.modes, m)
	t.byName[m.Name] = m
}

// ModeNames lists the available modes in configured order.
func (t *Table) ModeNames() []string {
	out := make([]string, len(t.modes))
	for i, m := range t.modes {
		out[i] = m.Name
	}
	return out
}

// Disabled lists the modes that failed to load.
func (t *Table) Disabled() []string {
	return append([]string(nil), t.disabled...)
}

// Mode returns an available mode by name.
func (t *Table) Mode(name string) (*Mode, bool) {
	m, ok := t.byName[name]
	return m, ok
}

// DefaultMode returns the first available mode.
func (t *Table) DefaultMode() *Mode {
	return t.modes[0]
}

// Resolve returns the requested mode, or the default mode when it is not
// available. fallback reports the substitution.
func (t *Table) Resolve(name string) (m *Mode, fallback bool) {
	if m, ok := t.byName[name]; ok {
		return m, false
	}
	return t.DefaultMode(), name != ""
}

// Parts lists the part parameters of a mode in output order.
func (t *Table) Parts(mode string) []string {
	m, _ := t.Resolve(mode)
	return append([]string(nil), m.parts...)
}

// FaceFor returns the face shown for an expression: the face named in the
// expression config, else a face whose id is the expression name, else the
// face at the expression's position, else the first face.
func (t *Table) FaceFor(expr avatar.Expression) (Face, bool) {
	if len(t.Faces) == 0 {
		return Face{}, false
	}
	if id, ok := t.exprFaces[expr]; ok {
		for _, f := range t.Faces {
			if f.ID == id {
				return f, true
			}
		}
	}
	for _, f := range t.Faces {
		if f.ID == string(expr) {
			return f, true
		}
	}
	for i, e := range avatar.Expressions {
		if e == expr && i < len(t.Faces) {
			return t.Faces[i], true
		}
	}
	return t.Faces[0], true
}

// PartSet lists the visible parts of a mode for an expression. Mode-specific
// ExpressionParts replace the face choice when present.
func (t *Table) PartSet(mode string, expr avatar.Expression) []string {
	m, _ := t.Resolve(mode)

	var out []string
	if m.Config.BackgroundImageName != "" {
		out = append(out, "part.background")
	}
	if m.Config.CatBackgroundImageName != "" {
		out = append(out, "part.body")
	}
	if parts, ok := m.exprParts[expr]; ok {
		return append(out, parts...)
	}
	if f, ok := t.FaceFor(expr); ok {
		out = append(out, f.Part())
	}
	return out
}

// KeyParts returns the key parts to show for the held codes.
func (t *Table) KeyParts(mode string, held []uint16) []string {
	m, _ := t.Resolve(mode)
	var out []string
	for _, code := range held {
		if p, ok := m.keyParts[code]; ok {
			out = append(out, p)
		}
	}
	return out
}
