package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/certmgr/pkg/certctx"
	"github.com/cuemby/certmgr/pkg/cryptoadapter"
)

// duration parses a YAML scalar like "720h" or "90m" into a time.Duration,
// since yaml.v3 has no built-in notion of Go durations.
type duration time.Duration

func (d duration) asDuration() time.Duration { return time.Duration(d) }

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	*d = duration(parsed)
	return nil
}

// fileConfig is the top-level shape of the YAML configuration file.
type fileConfig struct {
	ACME struct {
		DirectoryURL   string   `yaml:"directory_url"`
		Email          string   `yaml:"email"`
		ResourceDir    string   `yaml:"resource_dir"`
		AcceptTOS      bool     `yaml:"accept_tos"`
		PollDelay      duration `yaml:"poll_delay"`
		PollRetryLimit int      `yaml:"poll_retry_limit"`
	} `yaml:"acme"`

	CertDir    string `yaml:"cert_dir"`
	ArchiveDir string `yaml:"archive_dir"`

	MetricsListen string `yaml:"metrics_listen"`

	Passphrase struct {
		Source string `yaml:"source"` // "static" or "env"
		Value  string `yaml:"value"`
	} `yaml:"passphrase"`

	Hooks map[string][]string `yaml:"hooks"`

	Certificates []certificateConfig `yaml:"certificates"`
}

type verifyTargetConfig struct {
	Hosts    []string `yaml:"hosts"`
	Port     int      `yaml:"port"`
	StartTLS string   `yaml:"start_tls"`
	KeyTypes []string `yaml:"key_types"`
}

type certificateConfig struct {
	Name                string               `yaml:"name"`
	CommonName          string               `yaml:"common_name"`
	AltNames            []string             `yaml:"alt_names"`
	KeyTypes            []string             `yaml:"key_types"`
	RSABits             int                  `yaml:"rsa_bits"`
	ECDSACurve          string               `yaml:"ecdsa_curve"`
	HTTPChallengeDir    string               `yaml:"http_challenge_dir"`
	MustStaple          bool                 `yaml:"must_staple"`
	RenewalWindow       duration             `yaml:"renewal_window"`
	KeyRotationInterval duration             `yaml:"key_rotation_interval"`
	Passphrase          struct {
		Encrypt bool   `yaml:"encrypt"`
		Label   string `yaml:"label"`
	} `yaml:"passphrase"`
	VerifyTargets []verifyTargetConfig `yaml:"verify_targets"`
}

// loadConfig reads and parses the YAML configuration file at path.
func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.ACME.PollRetryLimit == 0 {
		cfg.ACME.PollRetryLimit = 10
	}
	if cfg.MetricsListen == "" {
		cfg.MetricsListen = ":9090"
	}

	return &cfg, nil
}

// specs converts the YAML certificate entries into certctx.CertificateSpecs.
func (c *fileConfig) specs() ([]certctx.CertificateSpec, error) {
	specs := make([]certctx.CertificateSpec, 0, len(c.Certificates))
	for _, cc := range c.Certificates {
		keyTypes, err := parseKeyTypes(cc.KeyTypes)
		if err != nil {
			return nil, fmt.Errorf("config: certificate %q: %w", cc.Name, err)
		}

		spec := certctx.CertificateSpec{
			Name:             cc.Name,
			CommonName:       cc.CommonName,
			AltNames:         cc.AltNames,
			KeyTypes:         keyTypes,
			RSABits:          cc.RSABits,
			ECDSACurve:       cc.ECDSACurve,
			HTTPChallengeDir: cc.HTTPChallengeDir,
			MustStaple:       cc.MustStaple,
			RenewalWindow:    time.Duration(cc.RenewalWindow),
			KeyRotationInterval: time.Duration(cc.KeyRotationInterval),
			PassphrasePolicy: certctx.PassphrasePolicy{
				Encrypt: cc.Passphrase.Encrypt,
				Label:   cc.Passphrase.Label,
			},
		}

		for _, vt := range cc.VerifyTargets {
			vtKeyTypes, err := parseKeyTypes(vt.KeyTypes)
			if err != nil {
				return nil, fmt.Errorf("config: certificate %q verify target: %w", cc.Name, err)
			}
			spec.VerifyTargets = append(spec.VerifyTargets, certctx.VerifyTarget{
				Hosts:    vt.Hosts,
				Port:     vt.Port,
				StartTLS: vt.StartTLS,
				KeyTypes: vtKeyTypes,
			})
		}

		specs = append(specs, spec)
	}
	return specs, nil
}

func parseKeyTypes(raw []string) ([]cryptoadapter.KeyType, error) {
	if len(raw) == 0 {
		return []cryptoadapter.KeyType{cryptoadapter.KeyTypeRSA}, nil
	}
	out := make([]cryptoadapter.KeyType, 0, len(raw))
	for _, s := range raw {
		switch cryptoadapter.KeyType(s) {
		case cryptoadapter.KeyTypeRSA:
			out = append(out, cryptoadapter.KeyTypeRSA)
		case cryptoadapter.KeyTypeECDSA:
			out = append(out, cryptoadapter.KeyTypeECDSA)
		default:
			return nil, fmt.Errorf("unknown key type %q", s)
		}
	}
	return out, nil
}

// passphraseProvider resolves the configured passphrase source into a
// cryptoadapter.PassphraseProvider.
func (c *fileConfig) passphraseProvider() cryptoadapter.PassphraseProvider {
	switch c.Passphrase.Source {
	case "env":
		return cryptoadapter.StaticPassphraseProvider(os.Getenv(c.Passphrase.Value))
	default:
		return cryptoadapter.StaticPassphraseProvider(c.Passphrase.Value)
	}
}
