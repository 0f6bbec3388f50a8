// Package prerequisites checks that the external tools the deployment
// pipeline shells out to are installed on the operator workstation.
package prerequisites

import (
	"fmt"
	"os/exec"
	"strings"
)

// Tool is a client binary the pipeline may need.
type Tool struct {
	// Name is the binary name to look for in PATH.
	Name string

	// Required indicates if this tool is mandatory for a full deploy.
	Required bool

	// Description explains which pipeline stage uses the tool.
	Description string

	// InstallURL points at installation instructions.
	InstallURL string
}

// DeployTools returns the tools a full deploy shells out to locally.
func DeployTools() []Tool {
	return []Tool{
		{
			Name:        "packer",
			Required:    true,
			Description: "Builds the golden Kubernetes node template",
			InstallURL:  "https://developer.hashicorp.com/packer/install",
		},
		{
			Name:        "terraform",
			Required:    true,
			Description: "Provisions the cluster VMs from the golden template",
			InstallURL:  "https://developer.hashicorp.com/terraform/install",
		},
		{
			Name:        "ansible-playbook",
			Required:    true,
			Description: "Runs the Kubespray playbooks that bootstrap Kubernetes",
			InstallURL:  "https://docs.ansible.com/ansible/latest/installation_guide/",
		},
		{
			Name:        "ssh",
			Required:    true,
			Description: "Used by Ansible to reach the cluster nodes",
			InstallURL:  "https://www.openssh.com/",
		},
	}
}

// OptionalTools returns tools that improve the experience but are not
// needed for a deploy to succeed.
func OptionalTools() []Tool {
	return []Tool{
		{
			Name:        "kubectl",
			Required:    false,
			Description: "Used for post-deploy cluster verification",
			InstallURL:  "https://kubernetes.io/docs/tasks/tools/",
		},
	}
}

// CheckResult contains the result of checking a single tool.
type CheckResult struct {
	Tool    Tool
	Found   bool
	Path    string
	Version string
}

// CheckResults contains the results of checking multiple tools.
type CheckResults struct {
	Results []CheckResult
	Missing []Tool
}

// HasErrors returns true if any required tools are missing.
func (r *CheckResults) HasErrors() bool {
	for _, tool := range r.Missing {
		if tool.Required {
			return true
		}
	}
	return false
}

// Error returns an error naming all missing required tools, or nil.
func (r *CheckResults) Error() error {
	var missing []string
	for _, tool := range r.Missing {
		if tool.Required {
			missing = append(missing, fmt.Sprintf("%s (%s)", tool.Name, tool.InstallURL))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing required tools: %s", strings.Join(missing, ", "))
}

// Check verifies that the specified tools are available in PATH.
func Check(tools []Tool) *CheckResults {
	results := &CheckResults{}

	for _, tool := range tools {
		result := CheckResult{Tool: tool}

		path, err := exec.LookPath(tool.Name)
		if err == nil {
			result.Found = true
			result.Path = path
			result.Version = toolVersion(tool.Name)
		} else {
			results.Missing = append(results.Missing, tool)
		}

		results.Results = append(results.Results, result)
	}

	return results
}

// CheckDeploy checks the tools a full deploy requires.
func CheckDeploy() *CheckResults {
	return Check(DeployTools())
}

// CheckAll checks deploy and optional tools.
func CheckAll() *CheckResults {
	deploy := DeployTools()
	optional := OptionalTools()
	all := make([]Tool, 0, len(deploy)+len(optional))
	all = append(all, deploy...)
	all = append(all, optional...)
	return Check(all)
}

// toolVersion attempts to get the version of a tool, best effort.
func toolVersion(name string) string {
	versionFlags := []string{"--version", "version", "-v"}

	for _, flag := range versionFlags {
		// #nosec G204 - name comes from trusted Tool definitions, not user input
		cmd := exec.Command(name, flag)
		output, err := cmd.Output()
		if err == nil {
			lines := strings.Split(string(output), "\n")
			if len(lines) > 0 {
				return strings.TrimSpace(lines[0])
			}
		}
	}

	return ""
}
