package tools

// Argument structs for the built-in todo tools. JSON Schemas are
// reflected from these; fields without omitempty are required.

// CreateArgs are the arguments for the create tool.
type CreateArgs struct {
	Title       string `json:"title" jsonschema:"maxLength=200,description=Short title for the task"`
	Description string `json:"description,omitempty" jsonschema:"maxLength=2000,description=Longer free-form details"`
	Priority    string `json:"priority,omitempty" jsonschema:"enum=low,enum=medium,enum=high,description=Task priority"`
	DueDate     string `json:"due_date,omitempty" jsonschema:"format=date-time,description=Due date in RFC 3339 format"`
	Tags        string `json:"tags,omitempty" jsonschema:"description=Comma-separated labels"`
}

// ListArgs are the arguments for the list tool.
type ListArgs struct {
	Status   string `json:"status,omitempty" jsonschema:"enum=active,enum=completed,enum=archived,description=Filter by status"`
	Priority string `json:"priority,omitempty" jsonschema:"enum=low,enum=medium,enum=high,description=Filter by priority"`
	Limit    int    `json:"limit,omitempty" jsonschema:"minimum=1,maximum=500,description=Page size (default 100)"`
	Offset   int    `json:"offset,omitempty" jsonschema:"minimum=0,description=Page offset"`
}

// UpdateArgs are the arguments for the update tool.
type UpdateArgs struct {
	ID          int64  `json:"id" jsonschema:"description=Task id"`
	Title       string `json:"title,omitempty" jsonschema:"maxLength=200,description=New title"`
	Description string `json:"description,omitempty" jsonschema:"maxLength=2000,description=New description"`
	Status      string `json:"status,omitempty" jsonschema:"enum=active,enum=completed,enum=archived,description=New status"`
	Priority    string `json:"priority,omitempty" jsonschema:"enum=low,enum=medium,enum=high,description=New priority"`
	DueDate     string `json:"due_date,omitempty" jsonschema:"format=date-time,description=New due date in RFC 3339 format"`
	Tags        string `json:"tags,omitempty" jsonschema:"description=New comma-separated labels"`
}

// DeleteArgs are the arguments for the delete tool. Deletion is
// destructive: confirmation is a required schema property, and the
// dispatcher rejects calls where it is not truthy.
type DeleteArgs struct {
	ID           int64 `json:"id" jsonschema:"description=Task id"`
	Confirmation bool  `json:"confirmation" jsonschema:"description=Must be true to confirm deletion"`
}

// Builtin returns the registry of the four built-in todo tools.
func Builtin() (*Registry, error) {
	create, err := newReflectedDescriptor("create",
		"Create a new task with a title and optional description, priority, due date, and tags.",
		&CreateArgs{}, false)
	if err != nil {
		return nil, err
	}
	list, err := newReflectedDescriptor("list",
		"List tasks, optionally filtered by status or priority, with paging.",
		&ListArgs{}, false)
	if err != nil {
		return nil, err
	}
	update, err := newReflectedDescriptor("update",
		"Update fields of an existing task by id.",
		&UpdateArgs{}, false)
	if err != nil {
		return nil, err
	}
	del, err := newReflectedDescriptor("delete",
		"Permanently delete a task by id. Requires confirmation.",
		&DeleteArgs{}, true)
	if err != nil {
		return nil, err
	}

	return NewRegistry(create, list, update, del)
}
