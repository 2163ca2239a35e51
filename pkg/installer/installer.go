package installer

import (
	"bytes"
	"context"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/zeroagent/zeroagent/pkg/logger"
	"github.com/zeroagent/zeroagent/pkg/osutil"
	"github.com/zeroagent/zeroagent/pkg/skills"
	skilltypes "github.com/zeroagent/zeroagent/pkg/types/skills"
	"github.com/zeroagent/zeroagent/pkg/version"
)

// MarketplaceURL is the base URL of marketplace skills
const MarketplaceURL = "https://skills.sh"

// CommandRunner runs an external tool in dir and returns its combined output
type CommandRunner func(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

func execCommand(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	osutil.SetProcessGroup(cmd)
	osutil.SetProcessGroupKill(cmd)
	return cmd.CombinedOutput()
}

// Installer materializes skills under SkillsDir/<name>
type Installer struct {
	skillsDir  string
	run        CommandRunner
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
}

// Option configures an Installer
type Option func(*Installer)

// WithCommandRunner replaces the runner used for git, npm and npx
func WithCommandRunner(run CommandRunner) Option {
	return func(i *Installer) {
		i.run = run
	}
}

// WithHTTPClient replaces the client used for direct downloads
func WithHTTPClient(c *http.Client) Option {
	return func(i *Installer) {
		i.httpClient = c
	}
}

// WithRetry sets how many times clones and downloads are attempted
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(i *Installer) {
		i.attempts = attempts
		i.delay = delay
	}
}

// New creates an Installer rooted at skillsDir
func New(skillsDir string, opts ...Option) *Installer {
	i := &Installer{
		skillsDir:  skillsDir,
		run:        execCommand,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		attempts:   3,
		delay:      time.Second,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Dir returns the directory of an installed skill
func (i *Installer) Dir(name string) string {
	return filepath.Join(i.skillsDir, name)
}

// Materialize fetches source into the directory of name and returns that
// directory. The skill is staged next to its final location and only moved
// into place once complete. Every failure is an ErrInstallFailure.
func (i *Installer) Materialize(ctx context.Context, source, name string) (string, error) {
	src := ParseSource(source)
	if name == "" {
		name = src.Name()
	}
	log := logger.G(ctx).WithFields(map[string]any{"skill": name, "source": src.Raw, "kind": src.Kind})

	if err := os.MkdirAll(i.skillsDir, 0o755); err != nil {
		return "", errors.Wrapf(skilltypes.ErrInstallFailure, "failed to create skills directory: %v", err)
	}
	staging, err := os.MkdirTemp(i.skillsDir, ".staging-"+name+"-")
	if err != nil {
		return "", errors.Wrapf(skilltypes.ErrInstallFailure, "failed to create staging directory: %v", err)
	}
	defer os.RemoveAll(staging)

	if src.Kind == KindURL {
		log.Warn("installing from an unverified source")
	}
	log.Info("installing skill")

	content := filepath.Join(staging, "skill")
	if err := i.fetch(ctx, src, name, staging, content); err != nil {
		return "", errors.Wrapf(skilltypes.ErrInstallFailure, "%s: %v", name, err)
	}

	dest := i.Dir(name)
	if err := os.RemoveAll(dest); err != nil {
		return "", errors.Wrapf(skilltypes.ErrInstallFailure, "failed to replace %s: %v", dest, err)
	}
	if err := os.Rename(content, dest); err != nil {
		return "", errors.Wrapf(skilltypes.ErrInstallFailure, "failed to move %s into place: %v", name, err)
	}

	log.WithField("dir", dest).Info("skill installed")
	return dest, nil
}

// fetch populates content, a not yet existing directory inside staging
func (i *Installer) fetch(ctx context.Context, src Source, name, staging, content string) error {
	switch src.Kind {
	case KindGitHub:
		return i.clone(ctx, "https://github.com/"+strings.TrimSuffix(src.Ref, ".git")+".git", content)
	case KindURL:
		if strings.HasSuffix(src.Ref, ".git") || strings.Contains(src.Ref, "github.com") {
			return i.clone(ctx, src.Ref, content)
		}
		return i.download(ctx, src.Ref, content)
	case KindNPM:
		return i.npmInstall(ctx, src.Ref, staging, content)
	case KindMarketplace:
		return i.marketplaceInstall(ctx, src.Ref, staging, content)
	case KindLocal:
		info, err := os.Stat(src.Ref)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return errors.Errorf("%s is not a directory", src.Ref)
		}
		return copyDir(src.Ref, content)
	}
	return errors.Errorf("unsupported source %q", src.Raw)
}

func (i *Installer) retry(ctx context.Context, fn func() error) error {
	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(i.attempts),
		retry.Delay(i.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
}

func (i *Installer) clone(ctx context.Context, url, dest string) error {
	err := i.retry(ctx, func() error {
		os.RemoveAll(dest)
		if out, err := i.run(ctx, "", "git", "clone", "--depth", "1", url, dest); err != nil {
			return errors.Wrapf(err, "git clone %s: %s", url, strings.TrimSpace(string(out)))
		}
		return nil
	})
	if err != nil {
		return err
	}
	os.RemoveAll(filepath.Join(dest, ".git"))
	return i.installDependencies(ctx, dest)
}

// installDependencies runs npm install for skills that ship a package.json
func (i *Installer) installDependencies(ctx context.Context, dir string) error {
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err != nil {
		return nil
	}
	if out, err := i.run(ctx, dir, "npm", "install", "--omit=dev"); err != nil {
		return errors.Wrapf(err, "npm install: %s", strings.TrimSpace(string(out)))
	}
	return nil
}

func (i *Installer) download(ctx context.Context, url, dest string) error {
	var body []byte
	err := i.retry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return retry.Unrecoverable(err)
		}
		req.Header.Set("User-Agent", version.UserAgent())
		resp, err := i.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 400 {
			err := errors.Errorf("GET %s: %s", url, resp.Status)
			if resp.StatusCode < 500 {
				return retry.Unrecoverable(err)
			}
			return err
		}
		body, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}
	file := filepath.Join(dest, skills.DefaultEntrypoint)
	if bytes.HasPrefix(body, []byte("---")) {
		file = filepath.Join(dest, skills.MarkdownManifest)
	}
	return os.WriteFile(file, body, 0o755)
}

func (i *Installer) npmInstall(ctx context.Context, pkg, staging, dest string) error {
	prefix := filepath.Join(staging, "npm")
	if err := os.MkdirAll(prefix, 0o755); err != nil {
		return err
	}
	if out, err := i.run(ctx, prefix, "npm", "install", pkg, "--prefix", prefix); err != nil {
		return errors.Wrapf(err, "npm install %s: %s", pkg, strings.TrimSpace(string(out)))
	}

	modules := filepath.Join(prefix, "node_modules")
	if err := copyDir(filepath.Join(modules, filepath.FromSlash(pkg)), dest); err != nil {
		return errors.Wrapf(err, "package %s was not installed", pkg)
	}
	return os.Rename(modules, filepath.Join(dest, "node_modules"))
}

// marketplaceInstall delegates to the marketplace CLI and keeps the
// directory holding the skill's SKILL.md
func (i *Installer) marketplaceInstall(ctx context.Context, ref, staging, dest string) error {
	work := filepath.Join(staging, "marketplace")
	if err := os.MkdirAll(work, 0o755); err != nil {
		return err
	}
	if out, err := i.run(ctx, work, "npx", "--yes", "skills", "add", MarketplaceURL+"/"+ref, "--skill", ref); err != nil {
		return errors.Wrapf(err, "npx skills add %s: %s", ref, strings.TrimSpace(string(out)))
	}

	matches, err := doublestar.Glob(os.DirFS(work), "**/"+skills.MarkdownManifest)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		return errors.Errorf("marketplace did not produce a %s for %s", skills.MarkdownManifest, ref)
	}
	chosen := matches[0]
	for _, m := range matches {
		if filepath.Base(filepath.Dir(m)) == ref {
			chosen = m
			break
		}
	}
	return copyDir(filepath.Join(work, filepath.Dir(chosen)), dest)
}

// Find searches the marketplace for skills matching query and returns the
// listing printed by the marketplace CLI
func (i *Installer) Find(ctx context.Context, query string) (string, error) {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return "", errors.New("search query cannot be empty")
	}
	args := append([]string{"--yes", "skills", "find"}, terms...)
	out, err := i.run(ctx, "", "npx", args...)
	if err != nil {
		return "", errors.Wrapf(err, "npx skills find %s: %s", strings.Join(terms, " "), strings.TrimSpace(string(out)))
	}
	return strings.TrimSpace(string(out)), nil
}

// Remove deletes the directory of name. A missing directory is not an error.
func (i *Installer) Remove(ctx context.Context, name string) error {
	dir := i.Dir(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		logger.G(ctx).WithField("skill", name).Debug("skill directory already absent")
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "failed to remove %s", dir)
	}
	return nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		target := filepath.Join(dst, rel)

		info, err := d.Info()
		if err != nil {
			return err
		}
		if d.IsDir() {
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, mode fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
