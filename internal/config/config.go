package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/beemacro/beemacro/internal/movement"
	cp "github.com/otiai10/copy"
	"gopkg.in/yaml.v3"
)

var (
	cfgMux   sync.RWMutex
	Macro    *MacroCfg
	Profiles map[string]*ProfileCfg
	Version  = "dev"

	// Dir is the configuration root, holding beemacro.yaml and profiles/.
	Dir = "config"
)

const (
	macroFile    = "beemacro.yaml"
	profilesDir  = "profiles"
	profileFile  = "profile.yaml"
	templateName = "template"
	secretPrefix = "dpapi:"
)

type MacroCfg struct {
	Debug struct {
		Log bool `yaml:"log"`
	} `yaml:"debug"`
	LogSaveDirectory string `yaml:"logSaveDirectory"`
	PathsDirectory   string `yaml:"pathsDirectory"`
	DryRun           bool   `yaml:"dryRun"`
	ActiveProfile    string `yaml:"activeProfile"`
	HTTP             struct {
		Addr              string  `yaml:"addr"`
		CommandsPerSecond float64 `yaml:"commandsPerSecond"`
		CommandBurst      int     `yaml:"commandBurst"`
	} `yaml:"http"`
	Discord struct {
		Enabled    bool     `yaml:"enabled"`
		BotAdmins  []string `yaml:"botAdmins"`
		ChannelID  string   `yaml:"channelId"`
		Token      string   `yaml:"token"`
		UseWebhook bool     `yaml:"useWebhook"`
		WebhookURL string   `yaml:"webhookUrl"`

		// Task messages are noisy, state changes and failures are always sent.
		EnableTaskMessages bool `yaml:"enableTaskMessages"`
	} `yaml:"discord"`
	Telegram struct {
		Enabled            bool   `yaml:"enabled"`
		ChatID             int64  `yaml:"chatId"`
		Token              string `yaml:"token"`
		EnableTaskMessages bool   `yaml:"enableTaskMessages"`
	} `yaml:"telegram"`
	Ngrok struct {
		Enabled       bool   `yaml:"enabled"`
		SendURL       bool   `yaml:"sendUrl"`
		Authtoken     string `yaml:"authtoken"`
		Region        string `yaml:"region"`
		Domain        string `yaml:"domain"`
		BasicAuthUser string `yaml:"basicAuthUser"`
		BasicAuthPass string `yaml:"basicAuthPass"`
	} `yaml:"ngrok"`
	AutoStart struct {
		Enabled      bool `yaml:"enabled"`
		DelaySeconds int  `yaml:"delaySeconds"`
	} `yaml:"autoStart"`
}

type ProfileCfg struct {
	Name     string `yaml:"-"`
	Movement struct {
		HasteCompensation bool              `yaml:"hasteCompensation"`
		Strategy          movement.Strategy `yaml:"strategy"`
		WalkSpeed         float64           `yaml:"walkSpeed"`
		CutoffFactor      float64           `yaml:"cutoffFactor"`
		SampleInterval    time.Duration     `yaml:"sampleInterval"`
	} `yaml:"movement"`
	Timing struct {
		Chunk     time.Duration `yaml:"chunk"`
		PausePoll time.Duration `yaml:"pausePoll"`
	} `yaml:"timing"`
	Speed struct {
		MaxAge time.Duration `yaml:"maxAge"`
		// Fallback is the multiplier used while the detector feed is stale.
		Fallback float64 `yaml:"fallback"`
	} `yaml:"speed"`
	Tasks      []string      `yaml:"tasks"`
	CycleDelay time.Duration `yaml:"cycleDelay"`
	Reconnect  struct {
		Path        string        `yaml:"path"`
		RetryDelay  time.Duration `yaml:"retryDelay"`
		MaxAttempts int           `yaml:"maxAttempts"`
	} `yaml:"reconnect"`
}

func GetProfile(name string) (*ProfileCfg, bool) {
	cfgMux.RLock()
	defer cfgMux.RUnlock()
	p, exists := Profiles[name]
	return p, exists
}

func GetProfiles() map[string]*ProfileCfg {
	cfgMux.RLock()
	defer cfgMux.RUnlock()
	copy := make(map[string]*ProfileCfg, len(Profiles))
	for k, v := range Profiles {
		copy[k] = v
	}
	return copy
}

// ActiveProfile returns the profile selected in beemacro.yaml.
func ActiveProfile() (*ProfileCfg, error) {
	cfgMux.RLock()
	defer cfgMux.RUnlock()
	if Macro == nil {
		return nil, errors.New("configuration not loaded")
	}
	p, ok := Profiles[Macro.ActiveProfile]
	if !ok {
		return nil, fmt.Errorf("active profile %q not found", Macro.ActiveProfile)
	}
	return p, nil
}

func Load() error {
	cfgMux.Lock()
	defer cfgMux.Unlock()

	macroPath := filepath.Join(Dir, macroFile)
	r, err := os.Open(macroPath)
	if err != nil {
		return fmt.Errorf("error loading %s: %w", macroFile, err)
	}
	defer r.Close()

	cfg := &MacroCfg{}
	if err = yaml.NewDecoder(r).Decode(cfg); err != nil {
		return fmt.Errorf("error reading config %s: %w", macroPath, err)
	}
	cfg.applyDefaults()
	if err = cfg.resolveSecrets(); err != nil {
		return err
	}

	root := filepath.Join(Dir, profilesDir)
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("error reading profiles directory %s: %w", root, err)
	}

	profiles := make(map[string]*ProfileCfg)
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == templateName {
			continue
		}
		p, err := loadProfile(filepath.Join(root, entry.Name(), profileFile))
		if err != nil {
			return err
		}
		p.Name = entry.Name()
		if err = p.Validate(); err != nil {
			return fmt.Errorf("profile %s: %w", p.Name, err)
		}
		profiles[p.Name] = p
	}

	if _, ok := profiles[cfg.ActiveProfile]; !ok {
		names := make([]string, 0, len(profiles))
		for n := range profiles {
			names = append(names, n)
		}
		slices.Sort(names)
		return fmt.Errorf("active profile %q not found, available: %s", cfg.ActiveProfile, strings.Join(names, ", "))
	}

	Macro = cfg
	Profiles = profiles
	return nil
}

func loadProfile(path string) (*ProfileCfg, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error loading profile: %w", err)
	}
	defer r.Close()

	p := &ProfileCfg{}
	if err = yaml.NewDecoder(r).Decode(p); err != nil {
		return nil, fmt.Errorf("error reading profile %s: %w", path, err)
	}
	p.applyDefaults()
	return p, nil
}

func (c *MacroCfg) applyDefaults() {
	if c.ActiveProfile == "" {
		c.ActiveProfile = "default"
	}
	if c.LogSaveDirectory == "" {
		c.LogSaveDirectory = "logs"
	}
	if c.PathsDirectory == "" {
		c.PathsDirectory = "paths"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = "127.0.0.1:8087"
	}
	if c.HTTP.CommandsPerSecond <= 0 {
		c.HTTP.CommandsPerSecond = 5
	}
	if c.HTTP.CommandBurst <= 0 {
		c.HTTP.CommandBurst = 10
	}
	if c.AutoStart.DelaySeconds <= 0 {
		c.AutoStart.DelaySeconds = 10
	}
}

func (c *MacroCfg) resolveSecrets() error {
	for _, s := range []*string{&c.Discord.Token, &c.Telegram.Token, &c.Ngrok.Authtoken, &c.Ngrok.BasicAuthPass} {
		v, err := ResolveSecret(*s)
		if err != nil {
			return err
		}
		*s = v
	}
	return nil
}

// ResolveSecret decrypts values stored as "dpapi:<base64>", other values pass through.
func ResolveSecret(v string) (string, error) {
	if !strings.HasPrefix(v, secretPrefix) {
		return v, nil
	}
	plain, err := decryptSecret(strings.TrimPrefix(v, secretPrefix))
	if err != nil {
		return "", fmt.Errorf("error decrypting secret: %w", err)
	}
	return plain, nil
}

func (p *ProfileCfg) applyDefaults() {
	if p.Movement.WalkSpeed <= 0 {
		p.Movement.WalkSpeed = movement.BaseSpeed
	}
	if p.Movement.CutoffFactor <= 0 {
		p.Movement.CutoffFactor = movement.DefaultCutoffFactor
	}
	if p.Timing.Chunk <= 0 {
		p.Timing.Chunk = 50 * time.Millisecond
	}
	if p.Timing.PausePoll <= 0 {
		p.Timing.PausePoll = p.Timing.Chunk
	}
	if p.Speed.MaxAge <= 0 {
		p.Speed.MaxAge = 2 * time.Second
	}
	if p.Speed.Fallback <= 0 {
		p.Speed.Fallback = 1
	}
	if p.Reconnect.RetryDelay <= 0 {
		p.Reconnect.RetryDelay = 5 * time.Second
	}
	if p.CycleDelay < 0 {
		p.CycleDelay = 0
	}
}

func (p *ProfileCfg) Validate() error {
	var errs []error
	if p.Movement.WalkSpeed < 1 || p.Movement.WalkSpeed > 200 {
		errs = append(errs, fmt.Errorf("walkSpeed %v out of range [1, 200]", p.Movement.WalkSpeed))
	}
	if p.Movement.CutoffFactor < 1 || p.Movement.CutoffFactor > 5 {
		errs = append(errs, fmt.Errorf("cutoffFactor %v out of range [1, 5]", p.Movement.CutoffFactor))
	}
	if p.Movement.SampleInterval < 0 || p.Movement.SampleInterval > 20*time.Millisecond {
		errs = append(errs, fmt.Errorf("sampleInterval %s out of range [0, 20ms]", p.Movement.SampleInterval))
	}
	if p.Speed.Fallback > 10 {
		errs = append(errs, fmt.Errorf("speed fallback %v out of range (0, 10]", p.Speed.Fallback))
	}
	// A request must be observed in well under 100ms.
	if p.Timing.Chunk < time.Millisecond || p.Timing.Chunk > 80*time.Millisecond {
		errs = append(errs, fmt.Errorf("timing chunk %s out of range [1ms, 80ms]", p.Timing.Chunk))
	}
	if p.Timing.PausePoll < time.Millisecond || p.Timing.PausePoll > 500*time.Millisecond {
		errs = append(errs, fmt.Errorf("pausePoll %s out of range [1ms, 500ms]", p.Timing.PausePoll))
	}
	if p.Reconnect.MaxAttempts < 0 {
		errs = append(errs, errors.New("reconnect maxAttempts cannot be negative"))
	}
	return errors.Join(errs...)
}

// CreateFromTemplate copies profiles/template into a new profile and reloads.
func CreateFromTemplate(name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}
	if name == templateName || strings.ContainsAny(name, `/\.`) {
		return fmt.Errorf("invalid profile name %q", name)
	}

	dst := filepath.Join(Dir, profilesDir, name)
	if _, err := os.Stat(dst); !os.IsNotExist(err) {
		return errors.New("profile with that name already exists")
	}

	if err := cp.Copy(filepath.Join(Dir, profilesDir, templateName), dst); err != nil {
		return fmt.Errorf("error copying template: %w", err)
	}

	return Load()
}

func SaveProfile(p *ProfileCfg) error {
	if p == nil || p.Name == "" {
		return errors.New("profile is nil or unnamed")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	d, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("error parsing profile: %w", err)
	}

	path := filepath.Join(Dir, profilesDir, p.Name, profileFile)
	if err = os.WriteFile(path, d, 0644); err != nil {
		return fmt.Errorf("error writing profile: %w", err)
	}

	return Load()
}
