// Package mounted reads ConfigMaps and Secrets projected into the pod as volumes and keeps
// their property sources current.
package mounted

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codnect.io/chrono"
	"github.com/GlintPay/gkcs/propertysource"
	"github.com/GlintPay/gkcs/resource"
	"github.com/rs/zerolog/log"
)

// dataLink is the symlink the kubelet swaps atomically whenever a projected volume changes
const dataLink = "..data"

// Applier takes the sources read from a volume
type Applier interface {
	Replace(owner propertysource.Owner, sources []propertysource.PropertySource) bool
}

type Volume struct {
	Path     string
	Kind     resource.Kind
	Priority int

	transformer *propertysource.Transformer
	applier     Applier
	version     string
	applied     bool
}

func NewVolume(path string, kind resource.Kind, priority int, transformer *propertysource.Transformer, applier Applier) *Volume {
	return &Volume{
		Path:        filepath.Clean(path),
		Kind:        kind,
		Priority:    priority,
		transformer: transformer,
		applier:     applier,
	}
}

func (v *Volume) Owner() propertysource.Owner {
	return propertysource.Owner{Kind: v.Kind, Name: v.Path}
}

// Read returns the files of the volume keyed by file name, and the current ..data target as
// the version. Hidden kubelet entries and directories are skipped.
func (v *Volume) Read() (string, map[string]string, error) {
	entries, err := os.ReadDir(v.Path)
	if err != nil {
		return "", nil, err
	}

	version, _ := os.Readlink(filepath.Join(v.Path, dataLink))

	data := make(map[string]string, len(entries))
	for _, d := range entries {
		name := d.Name()
		if strings.HasPrefix(name, "..") {
			continue
		}

		filePath := filepath.Join(v.Path, name)
		info, err := os.Stat(filePath)
		if err != nil {
			return "", nil, err
		}
		if info.IsDir() {
			continue
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", nil, err
		}
		data[name] = string(content)
	}
	return version, data, nil
}

// Reload re-reads the volume and hands its sources over, unless the kubelet version marker shows
// nothing changed since the last accepted reload. A volume that disappeared contributes nothing.
func (v *Volume) Reload() error {
	version, data, err := v.Read()
	if os.IsNotExist(err) {
		v.replace("", nil)
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", v.Path, err)
	}

	if v.applied && version != "" && version == v.version {
		return nil
	}

	sources, err := v.transformer.TransformData(v.Owner(), version, data, v.Priority)
	if err != nil {
		return err
	}
	v.replace(version, sources)
	return nil
}

func (v *Volume) replace(version string, sources []propertysource.PropertySource) {
	if v.applier.Replace(v.Owner(), sources) {
		v.version = version
		v.applied = true
		log.Debug().Str("path", v.Path).Str("version", version).Msgf("Applied %d mounted source(s)", len(sources))
	}
}

// Schedule reloads every volume at a fixed rate until ctx is done
func Schedule(ctx context.Context, volumes []*Volume, period time.Duration) error {
	if len(volumes) == 0 || period <= 0 {
		return nil
	}

	scheduler := chrono.NewDefaultTaskScheduler()
	log.Info().Msgf("Scheduling reload of %d mounted volume(s) every %v", len(volumes), period)

	task, err := scheduler.ScheduleAtFixedRate(func(_ context.Context) {
		for _, v := range volumes {
			if e := v.Reload(); e != nil {
				log.Error().Err(e).Msgf("Reload of %s failed", v.Path)
			}
		}
	}, period)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		task.Cancel()
		<-scheduler.Shutdown()
	}()
	return nil
}
