package proxmox

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pxkube/pxkube/internal/runner"
)

// automationPrivs is the privilege set packer and terraform need to
// clone templates and manage cluster VMs.
const automationPrivs = "VM.Allocate VM.Clone VM.Config.CDROM VM.Config.CPU VM.Config.Cloudinit " +
	"VM.Config.Disk VM.Config.HWType VM.Config.Memory VM.Config.Network VM.Config.Options " +
	"VM.Audit VM.Console VM.Monitor VM.PowerMgmt Datastore.AllocateSpace Datastore.Audit " +
	"Sys.Audit Sys.Console SDN.Use"

// Token is the API credential harvested when the automation identity is
// created. The secret only exists at creation time; it lives on in the
// state document afterwards.
type Token struct {
	ID     string
	Secret string
}

// EnsureAutomationIdentity creates the automation role, user, ACL and
// API token if they do not exist, and returns the token. When the token
// already exists its secret cannot be recovered, so the token is rotated:
// removed and re-created.
func (c *Client) EnsureAutomationIdentity(ctx context.Context) (*Token, error) {
	auto := c.cfg.Automation

	if err := c.ensureRole(ctx, auto.Role); err != nil {
		return nil, err
	}
	if err := c.ensureUser(ctx, auto.User); err != nil {
		return nil, err
	}
	if _, err := c.exec(ctx, 30*time.Second,
		"pveum", "acl", "modify", "/", "--users", auto.User, "--roles", auto.Role,
	); err != nil {
		return nil, fmt.Errorf("failed to grant %s to %s: %w", auto.Role, auto.User, err)
	}
	return c.rotateToken(ctx)
}

func (c *Client) ensureRole(ctx context.Context, role string) error {
	res := c.run.Run(ctx, c.probe("pveum", "role", "list", "--output-format", "json"))
	if res.OK() && strings.Contains(res.Stdout, fmt.Sprintf("%q", role)) {
		// Privileges may have changed between releases of this tool.
		if _, err := c.exec(ctx, 30*time.Second,
			"pveum", "role", "modify", role, "--privs", automationPrivs,
		); err != nil {
			return fmt.Errorf("failed to update role %s: %w", role, err)
		}
		return nil
	}
	if _, err := c.exec(ctx, 30*time.Second,
		"pveum", "role", "add", role, "--privs", automationPrivs,
	); err != nil {
		return fmt.Errorf("failed to create role %s: %w", role, err)
	}
	return nil
}

func (c *Client) ensureUser(ctx context.Context, user string) error {
	res := c.run.Run(ctx, c.probe("pveum", "user", "list", "--output-format", "json"))
	if res.OK() && strings.Contains(res.Stdout, fmt.Sprintf("%q", user)) {
		return nil
	}
	if _, err := c.exec(ctx, 30*time.Second,
		"pveum", "user", "add", user, "--comment", "pxkube automation",
	); err != nil {
		return fmt.Errorf("failed to create user %s: %w", user, err)
	}
	return nil
}

// rotateToken removes any stale token and creates a fresh one, parsing
// the secret from pveum's JSON output.
func (c *Client) rotateToken(ctx context.Context) (*Token, error) {
	auto := c.cfg.Automation

	// Removal fails when the token never existed; that is fine.
	_ = c.run.Run(ctx, runner.Command{
		Argv:    []string{"pveum", "user", "token", "remove", auto.User, auto.TokenName},
		Timeout: 30 * time.Second,
	})

	res, err := c.exec(ctx, 30*time.Second,
		"pveum", "user", "token", "add", auto.User, auto.TokenName,
		"--privsep", "0", "--output-format", "json",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create API token: %w", err)
	}

	var created struct {
		FullTokenID string `json:"full-tokenid"`
		Value       string `json:"value"`
	}
	if jerr := json.Unmarshal([]byte(res.Stdout), &created); jerr != nil {
		return nil, fmt.Errorf("failed to parse token output: %w", jerr)
	}
	if created.Value == "" {
		return nil, fmt.Errorf("pveum returned no token secret")
	}
	id := created.FullTokenID
	if id == "" {
		id = fmt.Sprintf("%s!%s", auto.User, auto.TokenName)
	}
	return &Token{ID: id, Secret: created.Value}, nil
}

// VerifyToken checks the credential against the REST API version
// endpoint. Proxmox hosts ship self-signed certificates, so verification
// is skipped on the probe.
func (c *Client) VerifyToken(ctx context.Context, token Token) bool {
	url := fmt.Sprintf("https://%s/api2/json/version", c.cfg.Proxmox.APIHostPort())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", fmt.Sprintf("PVEAPIToken=%s=%s", token.ID, token.Secret))

	httpClient := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402 -- self-signed PVE cert
		},
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		c.log.V(1).Info("token probe failed", "error", err.Error())
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}
