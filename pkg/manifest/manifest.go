package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flbench/flbench/pkg/types"
	"gopkg.in/yaml.v3"
)

// ErrInvalidVariant marks configuration-fatal template problems: a missing
// variant file or a template without the run-id placeholder. Never retried.
var ErrInvalidVariant = errors.New("invalid manifest variant")

// Placeholder tokens substituted during rendering. RunID is mandatory:
// spawned pods self-report their owning run through it; the rest are
// workload parameters.
const (
	tokenRunID   = "PLACEHOLDER_RUN_ID"
	tokenClients = "PLACEHOLDER_NUM_CLIENTS"
	tokenRounds  = "PLACEHOLDER_NUM_ROUNDS"
	tokenSeed    = "PLACEHOLDER_DATA_SEED"
	tokenDist    = "PLACEHOLDER_DISTRIBUTION"
	tokenAlpha   = "PLACEHOLDER_ALPHA"
)

// variantDirs maps each security level to its pre-authored manifest
// directory. The set is fixed: variants are authored and reviewed ahead of
// time, never generated.
var variantDirs = map[types.SecurityLevel]string{
	types.SecurityBaseline:      "00-baseline",
	types.SecurityNetworkPolicy: "10-networkpolicy",
	types.SecurityMTLS:          "20-mtls",
	types.SecurityCombined:      "25-combined",
}

const variantFile = "fl-deployment.yaml"

// Doc is one rendered manifest document.
type Doc struct {
	Kind string
	Name string
	Raw  []byte
}

// Render loads the variant for the run's security level from dir,
// substitutes the run identity and workload parameters, and splits the
// result into individual documents. Rendering is pure: the same config and
// variant bytes always produce identical output.
func Render(cfg types.RunConfig, dir string) ([]Doc, error) {
	sub, ok := variantDirs[cfg.Security]
	if !ok {
		return nil, fmt.Errorf("%w: no variant for security level %s", ErrInvalidVariant, cfg.Security)
	}
	path := filepath.Join(dir, sub, variantFile)
	tpl, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidVariant, err)
	}
	return render(cfg, tpl, path)
}

func render(cfg types.RunConfig, tpl []byte, path string) ([]Doc, error) {
	content := string(tpl)
	if !strings.Contains(content, tokenRunID) {
		return nil, fmt.Errorf("%w: %s has no %s placeholder", ErrInvalidVariant, path, tokenRunID)
	}

	replacer := strings.NewReplacer(
		tokenRunID, cfg.LogicalID(),
		tokenClients, strconv.Itoa(cfg.Clients),
		tokenRounds, strconv.Itoa(cfg.Rounds),
		tokenSeed, strconv.Itoa(cfg.Seed),
		tokenDist, string(cfg.Distribution),
		tokenAlpha, strconv.FormatFloat(cfg.Alpha, 'g', -1, 64),
	)
	content = replacer.Replace(content)

	var docs []Doc
	for _, chunk := range splitDocs(content) {
		var head struct {
			Kind     string `yaml:"kind"`
			Metadata struct {
				Name string `yaml:"name"`
			} `yaml:"metadata"`
		}
		if err := yaml.Unmarshal([]byte(chunk), &head); err != nil {
			return nil, fmt.Errorf("%w: unparseable document in %s: %v", ErrInvalidVariant, path, err)
		}
		if head.Kind == "" {
			continue
		}
		docs = append(docs, Doc{Kind: head.Kind, Name: head.Metadata.Name, Raw: []byte(chunk)})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s contains no documents", ErrInvalidVariant, path)
	}
	return docs, nil
}

// splitDocs splits a multi-document YAML stream on "---" separators,
// dropping empty chunks.
func splitDocs(content string) []string {
	var out []string
	for _, chunk := range strings.Split(content, "\n---") {
		chunk = strings.TrimPrefix(chunk, "---")
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		out = append(out, chunk)
	}
	return out
}
