// Package gitcollab implements the git collaborator the Agent-Team Executor
// depends on: merging a worktree branch back into a run's integration
// branch, detecting merge conflicts, and opening the pull request on
// completion. It is grounded on agentium's removed internal/github package's
// GitHub App JWT-minting shape (golang-jwt/jwt/v4), generalized from issue
// polling/comment posting to the narrower merge+PR surface the team package
// needs.
package gitcollab

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/forgehq/forge/internal/team"
)

// Collaborator implements team.GitCollaborator using the local git binary
// for merges and the GitHub REST API (authenticated as a GitHub App
// installation) for pull request creation.
type Collaborator struct {
	AppID          int64
	InstallationID int64
	PrivateKey     *rsa.PrivateKey
	Repo           string // "owner/name"
	HTTPClient     *http.Client

	// BaseURL overrides the GitHub API host; defaults to
	// https://api.github.com. Tests point it at an httptest server.
	BaseURL string
}

func (c *Collaborator) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://api.github.com"
}

var _ team.GitCollaborator = (*Collaborator)(nil)

// Merge fast-forwards or three-way-merges branch into integrationBranch at
// projectPath. On conflict it aborts the merge and returns
// *team.MergeConflictError with the conflicting file list.
func (c *Collaborator) Merge(ctx context.Context, projectPath, integrationBranch, branch string) error {
	checkout := exec.CommandContext(ctx, "git", "-C", projectPath, "checkout", integrationBranch)
	if out, err := checkout.CombinedOutput(); err != nil {
		return fmt.Errorf("checkout %s: %w: %s", integrationBranch, err, out)
	}

	merge := exec.CommandContext(ctx, "git", "-C", projectPath, "merge", "--no-edit", branch)
	out, err := merge.CombinedOutput()
	if err == nil {
		return nil
	}

	if !strings.Contains(string(out), "CONFLICT") {
		return fmt.Errorf("git merge %s: %w: %s", branch, err, out)
	}

	files := conflictingFiles(ctx, projectPath)
	abort := exec.CommandContext(ctx, "git", "-C", projectPath, "merge", "--abort")
	_ = abort.Run()
	return &team.MergeConflictError{Files: files}
}

func conflictingFiles(ctx context.Context, projectPath string) []string {
	cmd := exec.CommandContext(ctx, "git", "-C", projectPath, "diff", "--name-only", "--diff-filter=U")
	out, err := cmd.Output()
	if err != nil {
		return nil
	}
	var files []string
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line != "" {
			files = append(files, line)
		}
	}
	return files
}

// CreatePullRequest opens a PR for integrationBranch against the repo's
// default branch, authenticating as the configured GitHub App installation.
func (c *Collaborator) CreatePullRequest(ctx context.Context, projectPath, integrationBranch string, issue team.Issue) (string, error) {
	token, err := c.installationToken(ctx)
	if err != nil {
		return "", fmt.Errorf("mint installation token: %w", err)
	}

	body := map[string]string{
		"title": issue.Title,
		"head":  integrationBranch,
		"base":  "main",
		"body":  issue.Description,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/repos/%s/pulls", c.baseURL(), c.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create pull request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("create pull request: unexpected status %d", resp.StatusCode)
	}

	var created struct {
		HTMLURL string `json:"html_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("decode pull request response: %w", err)
	}
	return created.HTMLURL, nil
}

// signAppJWT mints a short-lived GitHub App JWT per the App authentication
// flow: issued up to 30s in the past to tolerate clock skew, expiring well
// within GitHub's 10-minute ceiling.
func signAppJWT(c *Collaborator) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
		Issuer:    strconv.FormatInt(c.AppID, 10),
	}
	appJWT, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign app jwt: %w", err)
	}
	return appJWT, nil
}

// installationToken mints a short-lived GitHub App JWT, then exchanges it
// for an installation access token.
func (c *Collaborator) installationToken(ctx context.Context) (string, error) {
	appJWT, err := signAppJWT(c)
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", c.baseURL(), c.InstallationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+appJWT)
	req.Header.Set("Accept", "application/vnd.github+json")

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("exchange app jwt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("exchange app jwt: unexpected status %d", resp.StatusCode)
	}

	var tokenResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	return tokenResp.Token, nil
}
