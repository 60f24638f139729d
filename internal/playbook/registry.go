// Package playbook loads named parameter-set templates from YAML. A play
// references a playbook by name; the template supplies entry buffer and
// exit defaults the play did not set itself. Files are schema-validated on
// load and hot-reloaded on change.
package playbook

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"optflow/internal/logger"
	"optflow/internal/play"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const templateSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "description": {"type": "string"},
    "entry_buffer": {"type": "string"},
    "order_type": {"enum": ["market", "limit"]},
    "take_profit": {"$ref": "#/$defs/target"},
    "stop_loss": {"$ref": "#/$defs/target"},
    "max_hold_hours": {"type": "integer", "minimum": 0}
  },
  "$defs": {
    "target": {
      "type": "object",
      "required": ["kind", "value"],
      "properties": {
        "kind": {"enum": ["price", "percent", "premium"]},
        "value": {"type": "string"}
      }
    }
  }
}`

var compiledTemplateSchema = jsonschema.MustCompileString("playbook.json", templateSchema)

type rawTarget struct {
	Kind  string `yaml:"kind"`
	Value string `yaml:"value"`
}

type rawTemplate struct {
	Description  string     `yaml:"description"`
	EntryBuffer  string     `yaml:"entry_buffer"`
	OrderType    string     `yaml:"order_type"`
	TakeProfit   *rawTarget `yaml:"take_profit"`
	StopLoss     *rawTarget `yaml:"stop_loss"`
	MaxHoldHours int        `yaml:"max_hold_hours"`
}

type rawFile struct {
	Playbooks map[string]rawTemplate `yaml:"playbooks"`
}

// Template is one parsed playbook.
type Template struct {
	Name         string
	Description  string
	EntryBuffer  decimal.Decimal
	OrderType    string
	TakeProfit   *play.ExitTarget
	StopLoss     *play.ExitTarget
	MaxHoldHours int
}

// Apply fills the play's unset entry/exit fields from the template.
func (t Template) Apply(p *play.Play) {
	if p.Entry.Buffer.Sign() == 0 && t.EntryBuffer.Sign() > 0 {
		p.Entry.Buffer = t.EntryBuffer
	}
	if p.Entry.OrderType == "" && t.OrderType != "" {
		p.Entry.OrderType = t.OrderType
	}
	if p.Exit.TakeProfit == nil && t.TakeProfit != nil {
		tp := *t.TakeProfit
		p.Exit.TakeProfit = &tp
	}
	if p.Exit.StopLoss == nil && t.StopLoss != nil {
		sl := *t.StopLoss
		p.Exit.StopLoss = &sl
	}
	if p.Exit.MaxHoldHours == 0 {
		p.Exit.MaxHoldHours = t.MaxHoldHours
	}
	if p.Playbook == "" {
		p.Playbook = t.Name
	}
}

// Registry holds the loaded templates behind a lock so the fsnotify
// reloader and the evaluating strategies can share it.
type Registry struct {
	dir string

	mu        sync.RWMutex
	templates map[string]Template
}

// Load reads every *.yaml/*.yml file under dir. A missing directory yields
// an empty registry: playbooks are optional.
func Load(dir string) (*Registry, error) {
	r := &Registry{dir: dir, templates: map[string]Template{}}
	if strings.TrimSpace(dir) == "" {
		return r, nil
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) reload() error {
	entries, err := os.ReadDir(r.dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("playbook: reading %s: %w", r.dir, err)
	}
	loaded := map[string]Template{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(r.dir, name)
		if err := loadFile(path, loaded); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.templates = loaded
	r.mu.Unlock()
	logger.Infof("playbook: loaded %d template(s) from %s", len(loaded), r.dir)
	return nil
}

func loadFile(path string, into map[string]Template) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("playbook: reading %s: %w", path, err)
	}
	var file rawFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("playbook: parsing %s: %w", path, err)
	}
	// Schema validation runs against the generic document so the checks
	// stay in one place (the schema), not scattered through parsing code.
	var generic struct {
		Playbooks map[string]any `yaml:"playbooks"`
	}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("playbook: parsing %s: %w", path, err)
	}
	for name, doc := range generic.Playbooks {
		if err := compiledTemplateSchema.Validate(doc); err != nil {
			return fmt.Errorf("playbook %s (%s): schema violation: %w", name, path, err)
		}
	}
	for name, rt := range file.Playbooks {
		if _, dup := into[name]; dup {
			return fmt.Errorf("playbook: duplicate template %q in %s", name, path)
		}
		t, err := parseTemplate(name, rt)
		if err != nil {
			return fmt.Errorf("playbook %s (%s): %w", name, path, err)
		}
		into[name] = t
	}
	return nil
}

func parseTemplate(name string, rt rawTemplate) (Template, error) {
	t := Template{
		Name:         name,
		Description:  rt.Description,
		OrderType:    rt.OrderType,
		MaxHoldHours: rt.MaxHoldHours,
	}
	if rt.EntryBuffer != "" {
		buf, err := decimal.NewFromString(rt.EntryBuffer)
		if err != nil {
			return Template{}, fmt.Errorf("bad entry_buffer %q: %w", rt.EntryBuffer, err)
		}
		t.EntryBuffer = buf
	}
	var err error
	if t.TakeProfit, err = parseTarget(rt.TakeProfit); err != nil {
		return Template{}, fmt.Errorf("take_profit: %w", err)
	}
	if t.StopLoss, err = parseTarget(rt.StopLoss); err != nil {
		return Template{}, fmt.Errorf("stop_loss: %w", err)
	}
	return t, nil
}

func parseTarget(rt *rawTarget) (*play.ExitTarget, error) {
	if rt == nil {
		return nil, nil
	}
	v, err := decimal.NewFromString(rt.Value)
	if err != nil {
		return nil, fmt.Errorf("bad value %q: %w", rt.Value, err)
	}
	return &play.ExitTarget{Kind: play.TargetKind(rt.Kind), Value: v}, nil
}

// Get looks a template up by name.
func (r *Registry) Get(name string) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[name]
	return t, ok
}

// Names lists loaded template names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.templates))
	for name := range r.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Watch reloads the registry whenever a file in the directory changes.
// Blocks until the done channel closes. A reload failure keeps the previous
// templates.
func (r *Registry) Watch(done <-chan struct{}) error {
	if strings.TrimSpace(r.dir) == "" {
		<-done
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("playbook: watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(r.dir); err != nil {
		return fmt.Errorf("playbook: watching %s: %w", r.dir, err)
	}
	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.reload(); err != nil {
				logger.Errorf("playbook: reload after %s failed, keeping previous templates: %v", event.Name, err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnf("playbook: watcher error: %v", err)
		}
	}
}
