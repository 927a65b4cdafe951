package tools

import (
	"context"

	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/libs/gitengine"
)

type BranchCreateArgs struct {
	Path       string `json:"path"`
	Branch     string `json:"branch" desc:"name of the new branch"`
	FromBranch string `json:"from_branch,omitempty" desc:"revision to start from, HEAD by default"`
	Force      bool   `json:"force,omitempty" desc:"move the branch if it already exists"`
	Checkout   bool   `json:"checkout,omitempty" desc:"switch to the branch after creating it"`
}

type BranchDeleteArgs struct {
	Path   string `json:"path"`
	Branch string `json:"branch"`
	Force  bool   `json:"force,omitempty" desc:"delete even if the branch is not merged into HEAD"`
}

type BranchRenameArgs struct {
	Path    string `json:"path"`
	OldName string `json:"old_name"`
	NewName string `json:"new_name"`
	Force   bool   `json:"force,omitempty" desc:"overwrite an existing branch called new_name"`
}

// BranchResult describes a created, deleted or renamed branch.
type BranchResult struct {
	Branch  Branch `json:"branch"`
	Summary string `json:"summary"`
}

func branchTools() []*Tool {
	return []*Tool{
		unaryTool(def{
			name:    "git_branch_create",
			group:   GroupBranch,
			desc:    "Create a local branch.",
			summary: "Created branch {branch} at {head}",
		}, createBranch),
		unaryTool(def{
			name:    "git_branch_delete",
			group:   GroupBranch,
			desc:    "Delete a local branch.",
			summary: "Deleted branch {branch} (was {head})",
		}, deleteBranch),
		unaryTool(def{
			name:    "git_branch_rename",
			group:   GroupBranch,
			desc:    "Rename a local branch.",
			summary: "Renamed branch {old} to {branch}",
		}, renameBranch),
		streamTool(def{
			name:     "git_branch_list",
			group:    GroupBranch,
			readOnly: true,
			desc:     "List local branches, one event per branch.",
		}, listBranches),
	}
}

func createBranch(ctx context.Context, s *session, args BranchCreateArgs) (BranchResult, error) {
	req, err := options.NewBranchOptions(args.Branch).
		From(args.FromBranch).
		Force(args.Force).
		Checkout(args.Checkout).
		Build()
	if err != nil {
		return BranchResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return BranchResult{}, err
	}
	defer release()

	b, err := s.engine().CreateBranch(ctx, h.Repo(), req)
	if err != nil {
		return BranchResult{}, err
	}
	return s.branchResult(b, nil), nil
}

func deleteBranch(ctx context.Context, s *session, args BranchDeleteArgs) (BranchResult, error) {
	req, err := options.NewBranchDeleteOptions(args.Branch).Force(args.Force).Build()
	if err != nil {
		return BranchResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return BranchResult{}, err
	}
	defer release()

	b, err := s.engine().DeleteBranch(ctx, h.Repo(), req)
	if err != nil {
		return BranchResult{}, err
	}
	return s.branchResult(b, nil), nil
}

func renameBranch(ctx context.Context, s *session, args BranchRenameArgs) (BranchResult, error) {
	req, err := options.NewBranchRenameOptions(args.OldName, args.NewName).Force(args.Force).Build()
	if err != nil {
		return BranchResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return BranchResult{}, err
	}
	defer release()

	b, err := s.engine().RenameBranch(ctx, h.Repo(), req)
	if err != nil {
		return BranchResult{}, err
	}
	return s.branchResult(b, map[string]any{"old": req.OldName}), nil
}

func listBranches(ctx context.Context, s *session, args PathArgs, yield func(Branch) error) error {
	h, err := s.repo(args.Path)
	if err != nil {
		return err
	}
	defer h.Close()

	return s.engine().Branches(ctx, h.Repo(), func(b gitengine.BranchInfo) error {
		return yield(newBranch(b))
	})
}

func (s *session) branchResult(b gitengine.BranchInfo, values map[string]any) BranchResult {
	if values == nil {
		values = make(map[string]any)
	}
	values["branch"] = b.Name
	values["head"] = shortHash(b.Head)
	return BranchResult{Branch: newBranch(b), Summary: s.summarize(values)}
}
