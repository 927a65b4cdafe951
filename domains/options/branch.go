package options

import "github.com/gomantics/gitmcp/domains/toolerr"

// BranchOptions builds a BranchRequest for branch creation.
type BranchOptions struct {
	name     string
	from     string
	force    bool
	checkout bool
}

// BranchRequest creates name at From (HEAD when empty).
type BranchRequest struct {
	Name     string
	From     string
	Force    bool
	Checkout bool
}

func NewBranchOptions(name string) BranchOptions {
	return BranchOptions{name: name}
}

// From sets the start point: a branch name or any revision.
func (o BranchOptions) From(rev string) BranchOptions {
	o.from = rev
	return o
}

// Force overwrites an existing branch.
func (o BranchOptions) Force(force bool) BranchOptions {
	o.force = force
	return o
}

// Checkout switches to the branch after creating it.
func (o BranchOptions) Checkout(checkout bool) BranchOptions {
	o.checkout = checkout
	return o
}

func (o BranchOptions) Build() (BranchRequest, error) {
	if err := validateBranchName("branch", o.name); err != nil {
		return BranchRequest{}, err
	}
	if o.from == o.name && o.from != "" {
		return BranchRequest{}, toolerr.InvalidOption("from_branch", "must differ from branch")
	}
	return BranchRequest{Name: o.name, From: o.from, Force: o.force, Checkout: o.checkout}, nil
}

// BranchDeleteOptions builds a BranchDeleteRequest.
type BranchDeleteOptions struct {
	name  string
	force bool
}

// BranchDeleteRequest deletes a local branch.
type BranchDeleteRequest struct {
	Name  string
	Force bool
}

func NewBranchDeleteOptions(name string) BranchDeleteOptions {
	return BranchDeleteOptions{name: name}
}

// Force deletes the branch even when it is not merged into HEAD.
func (o BranchDeleteOptions) Force(force bool) BranchDeleteOptions {
	o.force = force
	return o
}

func (o BranchDeleteOptions) Build() (BranchDeleteRequest, error) {
	if err := validateBranchName("branch", o.name); err != nil {
		return BranchDeleteRequest{}, err
	}
	return BranchDeleteRequest{Name: o.name, Force: o.force}, nil
}

// BranchRenameOptions builds a BranchRenameRequest.
type BranchRenameOptions struct {
	oldName string
	newName string
	force   bool
}

// BranchRenameRequest renames OldName to NewName.
type BranchRenameRequest struct {
	OldName string
	NewName string
	Force   bool
}

func NewBranchRenameOptions(oldName, newName string) BranchRenameOptions {
	return BranchRenameOptions{oldName: oldName, newName: newName}
}

// Force replaces an existing branch named NewName.
func (o BranchRenameOptions) Force(force bool) BranchRenameOptions {
	o.force = force
	return o
}

func (o BranchRenameOptions) Build() (BranchRenameRequest, error) {
	if err := validateBranchName("old_name", o.oldName); err != nil {
		return BranchRenameRequest{}, err
	}
	if err := validateBranchName("new_name", o.newName); err != nil {
		return BranchRenameRequest{}, err
	}
	if o.oldName == o.newName {
		return BranchRenameRequest{}, toolerr.InvalidOption("new_name", "must differ from old_name")
	}
	return BranchRenameRequest{OldName: o.oldName, NewName: o.newName, Force: o.force}, nil
}
