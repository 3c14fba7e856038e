package specs

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dkeye/huddle/internal/domain"
	"github.com/goccy/go-yaml"
	"github.com/rs/zerolog/log"
)

type roomFile struct {
	ID      string       `yaml:"id"`
	Members []memberFile `yaml:"members"`
}

type memberFile struct {
	ID               string        `yaml:"id"`
	Credentials      string        `yaml:"credentials"`
	OnJoin           string        `yaml:"on_join"`
	OnLeave          string        `yaml:"on_leave"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	ReconnectTimeout time.Duration `yaml:"reconnect_timeout"`
	PingInterval     time.Duration `yaml:"ping_interval"`
	Publish          []publishFile `yaml:"publish"`
	Play             []playFile    `yaml:"play"`
}

type publishFile struct {
	ID         string         `yaml:"id"`
	P2P        domain.P2PMode `yaml:"p2p"`
	ForceRelay bool           `yaml:"force_relay"`
	Audio      struct {
		Policy domain.PublishPolicy `yaml:"policy"`
	} `yaml:"audio"`
	Video struct {
		Policy domain.PublishPolicy `yaml:"policy"`
		Source domain.MediaSource   `yaml:"source"`
	} `yaml:"video"`
}

type playFile struct {
	ID         string `yaml:"id"`
	Src        string `yaml:"src"`
	ForceRelay bool   `yaml:"force_relay"`
}

// Parse decodes and validates one room spec.
func Parse(data []byte) (domain.RoomSpec, error) {
	var f roomFile
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.DisallowUnknownField()); err != nil {
		return domain.RoomSpec{}, fmt.Errorf("%w: %v", domain.ErrInvalidSpec, err)
	}
	spec := domain.RoomSpec{ID: domain.RoomID(f.ID)}
	for _, mf := range f.Members {
		ms := domain.MemberSpec{
			ID:               domain.MemberID(mf.ID),
			Credentials:      mf.Credentials,
			OnJoin:           mf.OnJoin,
			OnLeave:          mf.OnLeave,
			IdleTimeout:      mf.IdleTimeout,
			ReconnectTimeout: mf.ReconnectTimeout,
			PingInterval:     mf.PingInterval,
		}
		for _, pf := range mf.Publish {
			ms.Publish = append(ms.Publish, domain.PublishEndpoint{
				ID:         domain.EndpointID(pf.ID),
				P2P:        pf.P2P,
				ForceRelay: pf.ForceRelay,
				Audio:      domain.AudioSettings{Policy: pf.Audio.Policy},
				Video:      domain.VideoSettings{Policy: pf.Video.Policy, Source: pf.Video.Source},
			})
		}
		for _, pf := range mf.Play {
			src, err := domain.ParseSrcURI(pf.Src)
			if err != nil {
				return domain.RoomSpec{}, fmt.Errorf("member %s play %s: %w", mf.ID, pf.ID, err)
			}
			ms.Play = append(ms.Play, domain.PlayEndpoint{ID: domain.EndpointID(pf.ID), Src: src, ForceRelay: pf.ForceRelay})
		}
		spec.Members = append(spec.Members, ms)
	}
	if err := spec.Validate(); err != nil {
		return domain.RoomSpec{}, err
	}
	return spec, nil
}

// LoadDir parses every *.yaml and *.yml file of dir in name order. A missing
// directory yields no rooms.
func LoadDir(dir string) ([]domain.RoomSpec, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		log.Warn().Str("module", "adapters.specs").Str("dir", dir).Msg("specs dir not found")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	out := make([]domain.RoomSpec, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		spec, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		log.Info().Str("module", "adapters.specs").Str("file", name).Str("room", string(spec.ID)).
			Int("members", len(spec.Members)).Msg("room spec loaded")
		out = append(out, spec)
	}
	return out, nil
}
