// cmd/triplit-cli/handlers.go

package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/itoxiq/triplit/internal/clock"
	"github.com/itoxiq/triplit/internal/migrate"
	"github.com/itoxiq/triplit/internal/proxy"
	"github.com/itoxiq/triplit/internal/schema"
	"github.com/itoxiq/triplit/internal/triple"
)

func (c *cli) getCommands() map[string]command {
	return map[string]command{
		"help":  {help: "help - shows this help message", handler: (*cli).handleHelp},
		"clear": {help: "clear - clears the screen", handler: (*cli).handleClear},
		"exit":  {help: "exit - exits the client", handler: (*cli).handleExit},

		"use": {help: "use <collection> - sets the collection context for this session", handler: (*cli).handleUse},

		"insert": {help: "insert <collection> <json> [id] - inserts a document, generating an id if omitted", handler: (*cli).handleInsert},
		"get":    {help: "get <collection> <id> - fetches one document by id", handler: (*cli).handleGet},
		"query":  {help: "query <collection> <query_json> - runs a filtered query, see 'help query'", handler: (*cli).handleQuery},
		"update": {help: "update <collection> <id> <json_patch> - sets each field in json_patch on the entity", handler: (*cli).handleUpdate},
		"delete": {help: "delete <collection> <id> - deletes a document", handler: (*cli).handleDelete},

		"collection create":           {help: "collection create <name> <fields_json> - creates a collection, fields_json maps attribute name to kind (string|number|boolean|date|id)", handler: (*cli).handleCollectionCreate},
		"collection drop":             {help: "collection drop <name> - drops a collection and tombstones its entities", handler: (*cli).handleCollectionDrop},
		"collection add-attribute":    {help: "collection add-attribute <name> <attribute> <kind> - adds a top-level attribute", handler: (*cli).handleAddAttribute},
		"collection drop-attribute":   {help: "collection drop-attribute <name> <attribute> - drops a top-level attribute", handler: (*cli).handleDropAttribute},
		"collection rename-attribute": {help: "collection rename-attribute <name> <from> <to> - renames a top-level attribute", handler: (*cli).handleRenameAttribute},

		"schema override": {help: "schema override <json> - replaces the whole _schema document", handler: (*cli).handleSchemaOverride},
		"schema diff":     {help: "schema diff <old.json> <new.json> - lists backwards-incompatible edits between two schema files", handler: (*cli).handleSchemaDiff},
		"schema check":    {help: "schema check <old.json> <new.json> - re-checks those edits against this DB's live data", handler: (*cli).handleSchemaCheck},
		"migrate up":      {help: "migrate up <migrations_json> - applies migrations forward", handler: (*cli).handleMigrateUp},
		"migrate down":    {help: "migrate down <migrations_json> - reverts migrations", handler: (*cli).handleMigrateDown},

		"vars set": {help: "vars set <key>=<json_value> - sets a session variable", handler: (*cli).handleVarsSet},

		"backup":  {help: "backup - takes an immediate snapshot backup", handler: (*cli).handleBackup},
		"restore": {help: "restore <name> - restores from a named backup, destructive", handler: (*cli).handleRestore},
	}
}

func (c *cli) handleHelp(args string) error {
	names := make([]string, 0, len(c.commands))
	for name := range c.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println(colorInfo("Available commands:"))
	for _, name := range names {
		fmt.Printf("    %s\n", c.commands[name].help)
	}
	fmt.Println("---")
	fmt.Println(colorInfo("Query JSON shape:"))
	fmt.Println(`    {"where": [["age", ">", 30]], "order_by": [{"path": ["name"]}], "limit": 10}`)
	fmt.Println(`    {"where": {"and": [["status", "=", "active"], ["city", "like", "New%"]]}}`)
	return nil
}

func (c *cli) handleClear(args string) error {
	clearScreen()
	return nil
}

func (c *cli) handleExit(args string) error {
	return errExit
}

func (c *cli) handleUse(args string) error {
	c.currentCollection = strings.TrimSpace(args)
	fmt.Println(colorOK("Using collection ", c.currentCollection))
	return nil
}

func (c *cli) collectionAndRest(args string) (string, string, error) {
	parts := strings.SplitN(args, " ", 2)
	if len(parts) == 0 || parts[0] == "" {
		if c.currentCollection == "" {
			return "", "", fmt.Errorf("no collection given and none is in use, run 'use <collection>' first")
		}
		return c.currentCollection, args, nil
	}
	rest := ""
	if len(parts) == 2 {
		rest = parts[1]
	}
	return parts[0], rest, nil
}

func (c *cli) handleInsert(args string) error {
	collection, rest, err := c.collectionAndRest(args)
	if err != nil {
		return err
	}
	parts := strings.Fields(rest)
	if len(parts) == 0 {
		return fmt.Errorf("usage: insert <collection> <json> [id]")
	}

	var explicitID string
	jsonPart := rest
	if len(parts) > 1 && !strings.HasPrefix(parts[len(parts)-1], "{") {
		explicitID = parts[len(parts)-1]
		jsonPart = strings.TrimSuffix(strings.TrimSpace(rest), explicitID)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(jsonPart)), &doc); err != nil {
		return fmt.Errorf("invalid document JSON: %w", err)
	}

	var ts clock.Timestamp
	var err2 error
	if explicitID != "" {
		ts, err2 = c.db.Insert(c.ctx, collection, doc, explicitID)
	} else {
		ts, err2 = c.db.Insert(c.ctx, collection, doc)
	}
	if err2 != nil {
		return err2
	}
	fmt.Println(colorOK("Inserted at ", ts.String()))
	return nil
}

func (c *cli) handleGet(args string) error {
	collection, rest, err := c.collectionAndRest(args)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(rest)
	if id == "" {
		return fmt.Errorf("usage: get <collection> <id>")
	}
	doc, err := c.db.FetchByID(c.ctx, collection, id)
	if err != nil {
		return err
	}
	printDoc(doc)
	return nil
}

func (c *cli) handleQuery(args string) error {
	collection, rest, err := c.collectionAndRest(args)
	if err != nil {
		return err
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		rest = "{}"
	}
	q, err := parseQuery(collection, []byte(rest))
	if err != nil {
		return err
	}
	docs, err := c.db.Fetch(c.ctx, q)
	if err != nil {
		return err
	}
	printDocs(docs)
	return nil
}

func (c *cli) handleUpdate(args string) error {
	collection, rest, err := c.collectionAndRest(args)
	if err != nil {
		return err
	}
	fields := strings.SplitN(rest, " ", 2)
	if len(fields) < 2 {
		return fmt.Errorf("usage: update <collection> <id> <json_patch>")
	}
	id := fields[0]
	var patch map[string]any
	if err := json.Unmarshal([]byte(fields[1]), &patch); err != nil {
		return fmt.Errorf("invalid patch JSON: %w", err)
	}

	err = c.db.Update(c.ctx, collection, id, func(e *proxy.Entity) error {
		for key, value := range patch {
			if err := e.Set(triple.Path{key}, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Println(colorOK("Updated ", collection, "#", id))
	return nil
}

func (c *cli) handleDelete(args string) error {
	collection, rest, err := c.collectionAndRest(args)
	if err != nil {
		return err
	}
	id := strings.TrimSpace(rest)
	if id == "" {
		return fmt.Errorf("usage: delete <collection> <id>")
	}
	if err := c.db.Delete(c.ctx, collection, id); err != nil {
		return err
	}
	fmt.Println(colorOK("Deleted ", collection, "#", id))
	return nil
}

func (c *cli) handleCollectionCreate(args string) error {
	parts := strings.SplitN(args, " ", 2)
	if len(parts) < 2 {
		return fmt.Errorf("usage: collection create <name> <fields_json>")
	}
	var fields map[string]string
	if err := json.Unmarshal([]byte(parts[1]), &fields); err != nil {
		return fmt.Errorf("invalid fields JSON: %w", err)
	}
	attrs := schema.AttributeMap{}
	for name, kind := range fields {
		desc, err := descriptorForKind(kind)
		if err != nil {
			return err
		}
		attrs[name] = desc
	}
	if err := c.db.CreateCollection(c.ctx, parts[0], attrs); err != nil {
		return err
	}
	fmt.Println(colorOK("Created collection ", parts[0]))
	return nil
}

func descriptorForKind(kind string) (schema.AttributeDescriptor, error) {
	switch kind {
	case "id":
		return schema.Id(), nil
	case "string":
		return schema.String(), nil
	case "number":
		return schema.Number(), nil
	case "boolean":
		return schema.Boolean(), nil
	case "date":
		return schema.Date(), nil
	default:
		return schema.AttributeDescriptor{}, fmt.Errorf("unsupported attribute kind %q (use id|string|number|boolean|date, or 'schema override' for sets/records)", kind)
	}
}

func (c *cli) handleCollectionDrop(args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return fmt.Errorf("usage: collection drop <name>")
	}
	if err := c.db.DropCollection(c.ctx, name); err != nil {
		return err
	}
	fmt.Println(colorOK("Dropped collection ", name))
	return nil
}

func (c *cli) handleAddAttribute(args string) error {
	parts := strings.Fields(args)
	if len(parts) != 3 {
		return fmt.Errorf("usage: collection add-attribute <name> <attribute> <kind>")
	}
	desc, err := descriptorForKind(parts[2])
	if err != nil {
		return err
	}
	if err := c.db.AddAttribute(c.ctx, parts[0], parts[1], desc); err != nil {
		return err
	}
	fmt.Println(colorOK("Added attribute ", parts[1], " to ", parts[0]))
	return nil
}

func (c *cli) handleDropAttribute(args string) error {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return fmt.Errorf("usage: collection drop-attribute <name> <attribute>")
	}
	if err := c.db.DropAttribute(c.ctx, parts[0], parts[1]); err != nil {
		return err
	}
	fmt.Println(colorOK("Dropped attribute ", parts[1], " from ", parts[0]))
	return nil
}

func (c *cli) handleRenameAttribute(args string) error {
	parts := strings.Fields(args)
	if len(parts) != 3 {
		return fmt.Errorf("usage: collection rename-attribute <name> <from> <to>")
	}
	if err := c.db.RenameAttribute(c.ctx, parts[0], parts[1], parts[2]); err != nil {
		return err
	}
	fmt.Println(colorOK("Renamed ", parts[1], " to ", parts[2], " on ", parts[0]))
	return nil
}

func (c *cli) handleSchemaOverride(args string) error {
	var doc map[string]any
	if err := json.Unmarshal([]byte(args), &doc); err != nil {
		return fmt.Errorf("invalid schema JSON: %w", err)
	}
	s, err := schema.FromDoc(doc)
	if err != nil {
		return err
	}
	if err := c.db.OverrideSchema(c.ctx, s); err != nil {
		return err
	}
	fmt.Println(colorOK("Schema overridden."))
	return nil
}

func loadSchemaFile(path string) (*schema.Schema, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid schema JSON in %s: %w", path, err)
	}
	return schema.FromDoc(doc)
}

func (c *cli) twoSchemaFiles(args string) (*schema.Schema, *schema.Schema, error) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("usage: schema diff|check <old.json> <new.json>")
	}
	oldSchema, err := loadSchemaFile(parts[0])
	if err != nil {
		return nil, nil, err
	}
	newSchema, err := loadSchemaFile(parts[1])
	if err != nil {
		return nil, nil, err
	}
	return oldSchema, newSchema, nil
}

func (c *cli) handleSchemaDiff(args string) error {
	oldSchema, newSchema, err := c.twoSchemaFiles(args)
	if err != nil {
		return err
	}
	edits := c.db.DiffSchema(oldSchema, newSchema)
	if len(edits) == 0 {
		fmt.Println(colorOK("No backwards-incompatible edits."))
		return nil
	}
	for _, edit := range edits {
		fmt.Printf("%s: %s (%s, rule %s)\n", edit.Diff.Collection, edit.Diff.Attribute, edit.Diff.Type, edit.Rule)
	}
	return nil
}

func (c *cli) handleSchemaCheck(args string) error {
	oldSchema, newSchema, err := c.twoSchemaFiles(args)
	if err != nil {
		return err
	}
	edits := c.db.DiffSchema(oldSchema, newSchema)
	issues, err := c.db.CheckSchemaSafety(c.ctx, edits)
	if err != nil {
		return err
	}
	var unsafe int
	for _, issue := range issues {
		if !issue.ViolatesExistingData {
			continue
		}
		unsafe++
		fmt.Println(colorErr(issue.Edit.Diff.Collection, ": ", issue.Edit.Diff.Attribute, " - ", issue.Reason))
	}
	if unsafe == 0 {
		fmt.Println(colorOK("No edits violate data currently in this DB."))
	}
	return nil
}

func (c *cli) handleMigrateUp(args string) error {
	return c.runMigrations(args, migrate.Up)
}

func (c *cli) handleMigrateDown(args string) error {
	return c.runMigrations(args, migrate.Down)
}

func (c *cli) runMigrations(args string, direction migrate.Direction) error {
	var migrations []migrate.Migration
	if err := json.Unmarshal([]byte(args), &migrations); err != nil {
		return fmt.Errorf("invalid migrations JSON: %w", err)
	}
	if err := c.db.Migrate(c.ctx, migrations, direction); err != nil {
		return err
	}
	fmt.Println(colorOK("Migration applied."))
	return nil
}

func (c *cli) handleVarsSet(args string) error {
	parts := strings.SplitN(args, "=", 2)
	if len(parts) != 2 {
		return fmt.Errorf("usage: vars set <key>=<json_value>")
	}
	key := strings.TrimSpace(parts[0])
	var value any
	if err := json.Unmarshal([]byte(strings.TrimSpace(parts[1])), &value); err != nil {
		value = strings.TrimSpace(parts[1])
	}
	c.db.UpdateVariables(map[string]any{key: value})
	fmt.Println(colorOK("Set variable ", key))
	return nil
}

func (c *cli) handleBackup(args string) error {
	if err := c.db.Backup(c.ctx); err != nil {
		return err
	}
	fmt.Println(colorOK("Backup completed."))
	return nil
}

func (c *cli) handleRestore(args string) error {
	name := strings.TrimSpace(args)
	if name == "" {
		return fmt.Errorf("usage: restore <name>")
	}
	if err := c.db.Restore(c.ctx, name); err != nil {
		return err
	}
	fmt.Println(colorOK("Restored from ", name))
	return nil
}
