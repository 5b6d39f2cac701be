package application

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-version"
	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/yitter/idgenerator-go/idgen"
	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"wildprobe/backend/config"
	"wildprobe/backend/logger"
	"wildprobe/backend/probe"
	"wildprobe/backend/render"
	"wildprobe/backend/transport"
)

const Version = "1.2.0"

func init() {
	ini.PrettyFormat = false
	idgen.SetIdGenerator(idgen.NewIdGeneratorOptions(1))
}

var iniOptions = ini.LoadOptions{
	SkipUnrecognizableLines:  true,
	SpaceBeforeInlineComment: true,
	AllowShadows:             true,
}

// DefaultConfig points at the password checker service with a 100ms pause.
func DefaultConfig() *config.Config {
	return &config.Config{
		Version: Version,
		Target: config.Target{
			Host:        "ctf.mwales.net",
			Port:        45040,
			DialTimeout: 5 * time.Second,
			ReadTimeout: 10 * time.Second,
		},
		Proxy: config.Proxy{
			Enable: false,
			Type:   "socks5",
			Host:   "127.0.0.1",
			Port:   "1080",
		},
		Probe: config.Probe{
			Interval:    100 * time.Millisecond,
			Template:    probe.DefaultTemplate,
			Placeholder: probe.DefaultPlaceholder,
			Phrase:      probe.DefaultPhrase,
		},
		Output: config.Output{
			Format: render.FormatText,
		},
	}
}

type Application struct {
	Config     *config.Config
	ConfigFile string
	Logger     *logrus.Logger
}

// NewApp loads configFile, generating it with defaults when it does not
// exist. A legacy .ini file is migrated to config.yaml next to it. An empty
// path runs on the built-in defaults and never touches the disk.
func NewApp(configFile string) (*Application, error) {
	app := &Application{
		Config:     DefaultConfig(),
		ConfigFile: configFile,
		Logger:     logger.New(),
	}
	if configFile == "" {
		return app, nil
	}

	var err error
	switch {
	case strings.EqualFold(filepath.Ext(configFile), ".ini"):
		err = app.transformConfigFile()
	case fileExist(configFile):
		err = app.loadConfigFile()
	default:
		err = app.generateConfigFile()
	}
	if err != nil {
		return nil, err
	}
	return app, nil
}

func (r *Application) transformConfigFile() error {
	cfg, err := ini.LoadSources(iniOptions, r.ConfigFile)
	if err != nil {
		return pkgerrors.Wrap(err, "can't open config file")
	}
	if err = cfg.MapTo(r.Config); err != nil {
		return pkgerrors.Wrap(err, "can't map config file")
	}
	legacy := r.ConfigFile
	r.ConfigFile = filepath.Join(filepath.Dir(legacy), "config.yaml")
	if err := r.WriteConfig(r.Config); err != nil {
		return err
	}
	r.useLogDir()
	if err := os.Remove(legacy); err != nil {
		r.Logger.Error(err)
	}
	r.Logger.Info("migrated " + legacy + " to " + r.ConfigFile)
	return r.loadConfigFile()
}

func (r *Application) loadConfigFile() error {
	readData, err := os.ReadFile(r.ConfigFile)
	if err != nil {
		return err
	}
	// absent keys keep their defaults; an explicit readTimeout of 0 survives
	if err := yaml.Unmarshal(readData, r.Config); err != nil {
		return pkgerrors.Wrapf(err, "parse %s", r.ConfigFile)
	}
	r.useLogDir()

	var needUpdate = false
	if strings.TrimSpace(r.Config.Probe.Template) == "" {
		r.Config.Probe.Template = probe.DefaultTemplate
		needUpdate = true
	}
	if r.Config.Probe.Placeholder == "" {
		r.Config.Probe.Placeholder = probe.DefaultPlaceholder
		needUpdate = true
	}
	if strings.TrimSpace(r.Config.Probe.Phrase) == "" {
		r.Config.Probe.Phrase = probe.DefaultPhrase
		needUpdate = true
	}

	currentVersion, _ := version.NewVersion(Version)
	configFileVersion, err := version.NewVersion(r.Config.Version)
	if err != nil || currentVersion.GreaterThan(configFileVersion) {
		r.Config.Version = Version
		needUpdate = true
	}

	if needUpdate {
		if err := r.WriteConfig(r.Config); err != nil {
			r.Logger.WithError(err).Warn("can't update config file")
		}
	}
	return nil
}

func (r *Application) generateConfigFile() error {
	r.Config = DefaultConfig()
	r.Logger.Info("config file not found, generating default config file...")
	if err := r.WriteConfig(r.Config); err != nil {
		return pkgerrors.Wrap(err, "can't generate default config file")
	}
	r.Logger.Info("generate default config file successfully, locate at " + r.ConfigFile)
	return nil
}

func (r *Application) WriteConfig(conf *config.Config) error {
	bytes, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	return writeFile(r.ConfigFile, bytes, 0644)
}

func (r *Application) useLogDir() {
	if r.Config.LogDataDir == "" {
		return
	}
	level := r.Logger.GetLevel()
	r.Logger = logger.NewWithLogDir(r.Config.LogDataDir)
	r.Logger.SetLevel(level)
}

// Overrides carries command line values; zero values leave the config alone.
type Overrides struct {
	Host     string
	Port     int
	Exec     string
	Interval *time.Duration
	Timeout  *time.Duration
	Template string
	Alphabet string
	Output   string
	Debug    bool
}

func (r *Application) ApplyOverrides(o Overrides) {
	if o.Host != "" {
		r.Config.Target.Host = o.Host
	}
	if o.Port > 0 {
		r.Config.Target.Port = o.Port
	}
	if o.Exec != "" {
		r.Config.Target.Exec = o.Exec
	}
	if o.Interval != nil {
		r.Config.Probe.Interval = *o.Interval
	}
	if o.Timeout != nil {
		r.Config.Target.ReadTimeout = *o.Timeout
	}
	if o.Template != "" {
		r.Config.Probe.Template = o.Template
	}
	if o.Alphabet != "" {
		r.Config.Probe.Alphabet = o.Alphabet
	}
	if o.Output != "" {
		r.Config.Output.Format = o.Output
	}
	if o.Debug {
		r.Logger.SetLevel(logrus.DebugLevel)
	}
}

// Params validates the probe section and turns it into engine parameters.
func (r *Application) Params() (probe.Params, error) {
	p := r.Config.Probe
	tpl, err := probe.ParseTemplate(p.Template, p.Placeholder)
	if err != nil {
		return probe.Params{}, err
	}
	phrase := p.Phrase
	if strings.TrimSpace(phrase) == "" {
		phrase = probe.DefaultPhrase
	}
	parser, err := probe.NewCountParser(phrase)
	if err != nil {
		return probe.Params{}, err
	}
	alphabet, err := probe.ParseAlphabet(p.Alphabet)
	if err != nil {
		return probe.Params{}, err
	}
	return probe.Params{
		Alphabet: alphabet,
		Template: tpl,
		Parser:   parser,
		Interval: p.Interval,
	}, nil
}

// Opener picks the exec transport when a command is configured and a TCP
// session otherwise.
func (r *Application) Opener() probe.Opener {
	target := r.Config.Target
	if command := strings.TrimSpace(target.Exec); command != "" {
		return func(ctx context.Context) (probe.Transport, error) {
			p, err := transport.StartExec(ctx, command, target.ReadTimeout)
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}

	dialer := transport.Dialer{
		Timeout:     target.DialTimeout,
		ReadTimeout: target.ReadTimeout,
		Proxy:       proxyOptions(r.Config.Proxy),
	}
	return func(ctx context.Context) (probe.Transport, error) {
		conn, err := dialer.Dial(ctx, target.Host, target.Port)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

func proxyOptions(p config.Proxy) *transport.ProxyOptions {
	if !p.Enable {
		return nil
	}
	return &transport.ProxyOptions{
		Type: p.Type,
		Host: p.Host,
		Port: p.Port,
		User: p.User,
		Pass: p.Pass,
	}
}

func (r *Application) targetLabel() string {
	if command := strings.TrimSpace(r.Config.Target.Exec); command != "" {
		return "exec:" + command
	}
	return fmt.Sprintf("%s:%d", r.Config.Target.Host, r.Config.Target.Port)
}

// Run performs one probe session and writes every observation to out.
// Observations already written stay valid when the session aborts.
func (r *Application) Run(ctx context.Context, out io.Writer) (probe.Summary, error) {
	runID := idgen.NextId()
	log := r.Logger.WithField("runID", runID)

	params, err := r.Params()
	if err != nil {
		log.WithError(err).Error("invalid probe settings")
		return probe.Summary{Err: err}, err
	}
	writer, err := render.New(r.Config.Output.Format, out, runID)
	if err != nil {
		log.WithError(err).Error("invalid output settings")
		return probe.Summary{Err: err}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	log.WithFields(logrus.Fields{
		"target":     r.targetLabel(),
		"candidates": params.Alphabet.Len(),
		"template":   params.Template.String(),
		"interval":   params.Interval.String(),
	}).Info("probe started")

	engine := probe.NewEngine(r.Opener(), log.WithField("component", "probe"))
	observations, done, err := engine.Run(ctx, params)
	if err != nil {
		log.WithError(err).Error("probe could not start")
		return probe.Summary{Err: err}, err
	}

	var writeErr error
	for obs := range observations {
		if writeErr != nil {
			continue
		}
		if err := writer.Write(obs); err != nil {
			writeErr = pkgerrors.Wrap(err, "write observation")
			cancel()
		}
	}
	summary := <-done
	if writeErr != nil {
		summary.Err = writeErr
	}

	fields := logrus.Fields{
		"sent":         summary.Sent,
		"received":     summary.Received,
		"misses":       summary.Misses,
		"observations": summary.Observations,
	}
	if summary.HasCount {
		fields["lastCount"] = summary.LastCount
	}
	if summary.Err != nil {
		log.WithFields(fields).WithError(summary.Err).Error("probe aborted")
		return summary, summary.Err
	}
	log.WithFields(fields).Info("probe finished")
	return summary, nil
}

func fileExist(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, perm)
}
