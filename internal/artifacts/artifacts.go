package artifacts

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jstittsworth/nfl-predictor/internal/elo"
	"github.com/jstittsworth/nfl-predictor/internal/ml"
	"github.com/jstittsworth/nfl-predictor/pkg/utils"
	"github.com/sirupsen/logrus"
)

// File names inside a run directory.
const (
	ClassifierFile         = "classifier.json"
	RegressorFile          = "regressor.json"
	ScalerFile             = "scaler.json"
	ClassifierFeaturesFile = "classifier_features.txt"
	RegressorFeaturesFile  = "regressor_features.txt"
	MetricsFile            = "metrics.json"

	runsDir     = "runs"
	eloDir      = "elo"
	currentLink = "current"
	eloCurrent  = "current.json"
	tmpPrefix   = ".tmp-"
)

// ModelSet is everything a prediction batch needs from one training run.
type ModelSet struct {
	Version            string
	Classifier         *ml.MLPClassifier
	Regressor          *ml.GBRTRegressor
	Scaler             *ml.Scaler
	ClassifierFeatures []string
	RegressorFeatures  []string
}

// Store owns the artifact directory. Writers never touch a published run:
// each save builds a temporary directory, renames it into place and then
// swaps the current symlink.
type Store struct {
	root   string
	logger *logrus.Logger
}

func NewStore(root string, logger *logrus.Logger) *Store {
	return &Store{root: root, logger: logger}
}

func (s *Store) Root() string {
	return s.root
}

// NewVersion names a run by UTC time plus a short random suffix.
func NewVersion(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// SaveModels publishes set under runs/<version> and points current at it.
func (s *Store) SaveModels(set ModelSet, metrics interface{}) (string, error) {
	if set.Version == "" {
		return "", fmt.Errorf("save models: empty version")
	}
	if set.Classifier == nil || set.Regressor == nil || set.Scaler == nil {
		return "", fmt.Errorf("save models %s: incomplete model set", set.Version)
	}
	base := filepath.Join(s.root, runsDir)
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("create runs dir: %w", err)
	}

	tmp := filepath.Join(base, tmpPrefix+set.Version)
	final := filepath.Join(base, set.Version)
	if err := os.RemoveAll(tmp); err != nil {
		return "", err
	}
	if err := os.Mkdir(tmp, 0o755); err != nil {
		return "", fmt.Errorf("create temp run dir: %w", err)
	}

	err := func() error {
		if err := writeJSON(filepath.Join(tmp, ClassifierFile), set.Classifier); err != nil {
			return err
		}
		if err := writeJSON(filepath.Join(tmp, RegressorFile), set.Regressor); err != nil {
			return err
		}
		if err := writeJSON(filepath.Join(tmp, ScalerFile), set.Scaler); err != nil {
			return err
		}
		if err := writeLines(filepath.Join(tmp, ClassifierFeaturesFile), set.ClassifierFeatures); err != nil {
			return err
		}
		if err := writeLines(filepath.Join(tmp, RegressorFeaturesFile), set.RegressorFeatures); err != nil {
			return err
		}
		if metrics != nil {
			if err := writeJSON(filepath.Join(tmp, MetricsFile), metrics); err != nil {
				return err
			}
		}
		return os.Rename(tmp, final)
	}()
	if err != nil {
		os.RemoveAll(tmp)
		return "", fmt.Errorf("publish run %s: %w", set.Version, err)
	}

	if err := swapSymlink(filepath.Join(s.root, currentLink), filepath.Join(runsDir, set.Version)); err != nil {
		return "", fmt.Errorf("point current at %s: %w", set.Version, err)
	}

	s.logger.WithFields(logrus.Fields{
		"component": "artifacts",
		"version":   set.Version,
		"path":      final,
	}).Info("Published model artifacts")
	return final, nil
}

// CurrentVersion resolves the current symlink.
func (s *Store) CurrentVersion() (string, error) {
	target, err := os.Readlink(filepath.Join(s.root, currentLink))
	if err != nil {
		return "", fmt.Errorf("no published models in %s: %w", s.root, utils.ErrMissingArtifact)
	}
	return filepath.Base(target), nil
}

// LoadModels reads the run that current points at.
func (s *Store) LoadModels() (*ModelSet, error) {
	version, err := s.CurrentVersion()
	if err != nil {
		return nil, err
	}
	return s.LoadModelsVersion(version)
}

// LoadModelsVersion reads and cross-checks one run. Any absent, corrupt or
// inconsistent file is reported as ErrMissingArtifact.
func (s *Store) LoadModelsVersion(version string) (*ModelSet, error) {
	dir := filepath.Join(s.root, runsDir, version)
	set := &ModelSet{
		Version:    version,
		Classifier: &ml.MLPClassifier{},
		Regressor:  &ml.GBRTRegressor{},
		Scaler:     &ml.Scaler{},
	}

	if err := readJSON(filepath.Join(dir, ClassifierFile), set.Classifier); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, RegressorFile), set.Regressor); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, ScalerFile), set.Scaler); err != nil {
		return nil, err
	}
	var err error
	if set.ClassifierFeatures, err = readLines(filepath.Join(dir, ClassifierFeaturesFile)); err != nil {
		return nil, err
	}
	if set.RegressorFeatures, err = readLines(filepath.Join(dir, RegressorFeaturesFile)); err != nil {
		return nil, err
	}

	if err := set.validate(); err != nil {
		return nil, fmt.Errorf("run %s: %v: %w", version, err, utils.ErrMissingArtifact)
	}
	return set, nil
}

// LoadMetrics returns the raw metrics document of a run.
func (s *Store) LoadMetrics(version string) (json.RawMessage, error) {
	data, err := os.ReadFile(filepath.Join(s.root, runsDir, version, MetricsFile))
	if err != nil {
		return nil, fmt.Errorf("read metrics for %s: %v: %w", version, err, utils.ErrMissingArtifact)
	}
	return json.RawMessage(data), nil
}

func (set *ModelSet) validate() error {
	if err := set.Scaler.Validate(); err != nil {
		return err
	}
	if len(set.ClassifierFeatures) == 0 || len(set.RegressorFeatures) == 0 {
		return errors.New("empty feature list")
	}
	if set.Classifier.Inputs() != len(set.ClassifierFeatures) {
		return fmt.Errorf("classifier takes %d inputs, feature list has %d", set.Classifier.Inputs(), len(set.ClassifierFeatures))
	}
	if set.Regressor.Inputs() != len(set.RegressorFeatures) {
		return fmt.Errorf("regressor takes %d inputs, feature list has %d", set.Regressor.Inputs(), len(set.RegressorFeatures))
	}
	known := make(map[string]bool, len(set.Scaler.Features))
	for _, f := range set.Scaler.Features {
		known[f] = true
	}
	for _, list := range [][]string{set.ClassifierFeatures, set.RegressorFeatures} {
		for _, f := range list {
			if !known[f] {
				return fmt.Errorf("feature %s is not in the scaler", f)
			}
		}
	}
	return nil
}

// SaveEloSnapshot writes elo/elo_<version>.json and points elo/current.json at it.
func (s *Store) SaveEloSnapshot(snap elo.Snapshot, version string) (string, error) {
	dir := filepath.Join(s.root, eloDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create elo dir: %w", err)
	}
	name := "elo_" + version + ".json"
	final := filepath.Join(dir, name)
	tmp := filepath.Join(dir, tmpPrefix+name)

	if err := writeJSON(tmp, snap); err != nil {
		os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("publish elo snapshot: %w", err)
	}
	if err := swapSymlink(filepath.Join(dir, eloCurrent), name); err != nil {
		return "", fmt.Errorf("point elo current at %s: %w", name, err)
	}
	return final, nil
}

// LoadEloSnapshot reads the snapshot elo/current.json points at.
func (s *Store) LoadEloSnapshot() (elo.Snapshot, error) {
	var snap elo.Snapshot
	if err := readJSON(filepath.Join(s.root, eloDir, eloCurrent), &snap); err != nil {
		return elo.Snapshot{}, err
	}
	if err := snap.Validate(); err != nil {
		return elo.Snapshot{}, err
	}
	return snap, nil
}

func swapSymlink(link, target string) error {
	tmp := link + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(target, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, link); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	return writeFile(path, data)
}

func writeLines(path string, lines []string) error {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	return writeFile(path, buf.Bytes())
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s not found: %w", path, utils.ErrMissingArtifact)
		}
		return fmt.Errorf("read %s: %v: %w", path, err, utils.ErrMissingArtifact)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %v: %w", path, err, utils.ErrMissingArtifact)
	}
	return nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %v: %w", path, err, utils.ErrMissingArtifact)
	}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			out = append(out, line)
		}
	}
	return out, sc.Err()
}
