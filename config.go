package main

import (
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/contrib/renders/multitemplate"
	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

// Resolution is a display size in pixels. A zero width or height means
// "use the desktop resolution", resolved when the patcher attaches.
type Resolution struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

func (r Resolution) IsAuto() bool {
	return r.Width == 0 || r.Height == 0
}

func (r Resolution) AspectRatio() float32 {
	if r.Height == 0 {
		return 0
	}

	return float32(r.Width) / float32(r.Height)
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

type Toggle struct {
	Enable bool `yaml:"enable"`
}

type FixToggles struct {
	CenterHud Toggle `yaml:"centerHud"`
}

type Config struct {
	Name         string     `yaml:"name"`
	MasterEnable bool       `yaml:"masterEnable"`
	Resolution   Resolution `yaml:"resolution"`
	Fixes        FixToggles `yaml:"fixes"`
	GameExe      string     `yaml:"gameExe"`
	GameArgs     string     `yaml:"gameArgs"`
	Process      string     `yaml:"process"`

	// AlertSound names an asset played when an apply run finishes; the
	// game usually covers the panel, so the cue is audible feedback.
	AlertSound  string `yaml:"alertSound"`
	AlertVolume int    `yaml:"alertVolume"`

	Script string `yaml:"-"`

	vcfixConfigDir string
}

func (c *Config) SetDefaultScript() {
	c.Script = `
# Fixes registered here run through the same scan and hook pipeline as
# the built-in ones. reg() and write_float() act on the thread stopped
# at the hooked instruction; width and height carry the resolved
# resolution.

add_fix("example", "DE AD BE EF ?? ?? DE AD", 0, func() {
  write_float(reg("esp") + 0x10, width)
})
`
}

func (c *Config) SetDefaults() {
	c.Name = "Valkyria Chronicles"
	c.MasterEnable = true
	c.Resolution = Resolution{}
	c.Fixes.CenterHud.Enable = true

	c.Process = "Valkyria.exe"
	c.GameExe = "path/to/Valkyria.exe"
	c.GameArgs = ""

	c.AlertSound = ""
	c.AlertVolume = 50
}

func (c *Config) Init() error {
	cfgdir, err := os.UserConfigDir()
	if err != nil {
		return err
	}

	c.vcfixConfigDir = filepath.Join(cfgdir, "vcfix")

	err = os.MkdirAll(c.vcfixConfigDir, 0777)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return err
	}

	return nil
}

func (c Config) ConfigPath() string {
	return filepath.Join(c.vcfixConfigDir, "config.yml")
}

func (c Config) LogPath() string {
	return filepath.Join(c.vcfixConfigDir, "vcfix.log")
}

func (c *Config) Load() error {
	for _, fn := range []func() error{c.LoadConfig, c.LoadScript} {
		err := fn()
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) LoadConfig() error {
	f, err := os.Open(c.ConfigPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNoConfig, c.ConfigPath())
		}

		return err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	err = dec.Decode(c)
	if err != nil {
		return fmt.Errorf("cannot parse %s: %w", c.ConfigPath(), err)
	}

	log.Printf("Config parse: name: %s", c.Name)
	log.Printf("Config parse: masterEnable: %t", c.MasterEnable)
	log.Printf("Config parse: resolution: %s", c.Resolution)
	log.Printf("Config parse: fixes.centerHud.enable: %t", c.Fixes.CenterHud.Enable)

	return nil
}

func (c *Config) LoadScript() error {
	b, err := os.ReadFile(filepath.Join(c.vcfixConfigDir, "script.anko"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.SetDefaultScript()
		}

		// The script is optional.
		return nil
	}

	c.Script = string(b)
	return nil
}

// WriteDefault fills in the stock configuration and writes it out, for
// first runs where there is nothing to load yet.
func (c *Config) WriteDefault() error {
	c.SetDefaults()
	c.SetDefaultScript()
	return c.Save()
}

func (c Config) Save() error {
	for _, fn := range []func() error{c.SaveConfig, c.SaveScript} {
		err := fn()
		if err != nil {
			return err
		}
	}
	return nil
}

func (c Config) SaveConfig() error {
	f, err := os.OpenFile(c.ConfigPath(), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	err = enc.Encode(c)
	if err != nil {
		return err
	}

	return enc.Close()
}

func (c Config) SaveScript() error {
	f, err := os.OpenFile(filepath.Join(c.vcfixConfigDir, "script.anko"), os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0666)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write([]byte(c.Script))
	if err != nil {
		return err
	}

	return nil
}

func (c Config) ReadDir(dirname string) ([]string, error) {
	locals := make(map[string]bool)
	entries, err := os.ReadDir(filepath.Join(c.vcfixConfigDir, dirname))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	result := make([]string, 0, len(entries))

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		if strings.HasSuffix(entry.Name(), ".swp") || strings.HasPrefix(entry.Name(), ".") || strings.HasSuffix(entry.Name(), "~") {
			continue
		}

		locals[entry.Name()] = true
		result = append(result, filepath.Join(c.vcfixConfigDir, dirname, entry.Name()))
	}

	entries, err = os.ReadDir(dirname)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		if strings.HasSuffix(entry.Name(), ".swp") || strings.HasPrefix(entry.Name(), ".") || strings.HasSuffix(entry.Name(), "~") {
			continue
		}

		if locals[entry.Name()] {
			continue
		}

		result = append(result, filepath.Join(dirname, entry.Name()))
	}

	return result, nil
}

// Asset resolves a bare name against the local assets directory first
// and the config directory second.
func (c Config) Asset(name string) string {
	local := filepath.Join("assets", name)
	_, err := os.Stat(local)
	if err == nil {
		return local
	}

	return filepath.Join(c.vcfixConfigDir, "assets", name)
}

func (c Config) InitAssetsTemplates(r *gin.Engine) error {
	var err error
	var data []byte
	var tmpl *template.Template

	var names, pnames []string

	template_files, err := c.ReadDir("templates")
	if err != nil {
		return err
	}
	for _, name := range template_files {
		if strings.HasPrefix(filepath.Base(name), "_") {
			pnames = append(pnames, name)
		} else {
			names = append(names, name)
		}
	}

	funcs := template.FuncMap{
		"join": strings.Join,
		"hex": func(v uintptr) string {
			return fmt.Sprintf("0x%x", v)
		},
	}

	render := multitemplate.New()
	ptmpls := make(map[string]*template.Template)
	for _, pname := range pnames {
		if data, err = os.ReadFile(pname); err != nil {
			return fmt.Errorf("cannot read partial template %q: %w", pname, err)
		}
		pname = strings.TrimSuffix(filepath.Base(pname), ".html")
		if tmpl, err = template.New(pname).Funcs(funcs).Parse(string(data)); err != nil {
			return fmt.Errorf("cannot parse template %q: %w", pname, err)
		}
		ptmpls[pname] = tmpl
	}
	for _, name := range names {
		if data, err = os.ReadFile(name); err != nil {
			return fmt.Errorf("cannot read template %q: %w", name, err)
		}
		if tmpl, err = template.New(filepath.Base(name)).Funcs(funcs).Parse(string(data)); err != nil {
			return fmt.Errorf("cannot parse template %q: %w", name, err)
		}
		for pname, ptmpl := range ptmpls {
			tmpl.AddParseTree(pname, ptmpl.Tree)
		}
		render.Add(filepath.Base(name), tmpl)
	}
	r.HTMLRender = render

	asset_files, err := c.ReadDir("assets")
	if err != nil {
		return err
	}
	for _, name := range asset_files {
		name := name
		r.GET("/"+filepath.Base(name), func(c *gin.Context) {
			c.File(name)
		})
	}
	return nil
}

var ErrNoConfig = errors.New("configuration file is missing")

// vim: ai:ts=8:sw=8:noet:syntax=go
