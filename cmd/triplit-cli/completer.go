// cmd/triplit-cli/completer.go

package main

import "github.com/chzyer/readline"

func (c *cli) getCompleter() readline.AutoCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("insert", readline.PcItemDynamic(c.fetchCollectionNames)),
		readline.PcItem("get", readline.PcItemDynamic(c.fetchCollectionNames)),
		readline.PcItem("query", readline.PcItemDynamic(c.fetchCollectionNames)),
		readline.PcItem("update", readline.PcItemDynamic(c.fetchCollectionNames)),
		readline.PcItem("delete", readline.PcItemDynamic(c.fetchCollectionNames)),
		readline.PcItem("use", readline.PcItemDynamic(c.fetchCollectionNames)),
		readline.PcItem("collection",
			readline.PcItem("create"),
			readline.PcItem("drop", readline.PcItemDynamic(c.fetchCollectionNames)),
			readline.PcItem("add-attribute", readline.PcItemDynamic(c.fetchCollectionNames)),
			readline.PcItem("drop-attribute", readline.PcItemDynamic(c.fetchCollectionNames)),
			readline.PcItem("rename-attribute", readline.PcItemDynamic(c.fetchCollectionNames)),
		),
		readline.PcItem("schema", readline.PcItem("override"), readline.PcItem("diff"), readline.PcItem("check")),
		readline.PcItem("migrate", readline.PcItem("up"), readline.PcItem("down")),
		readline.PcItem("vars", readline.PcItem("set")),
		readline.PcItem("backup"),
		readline.PcItem("restore"),
		readline.PcItem("clear"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

// fetchCollectionNames lists collections declared in the live schema,
// for completion after insert/get/query/update/delete/use.
func (c *cli) fetchCollectionNames(line string) []string {
	s, err := c.db.Schema(c.ctx)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(s.Collections))
	for name := range s.Collections {
		names = append(names, name)
	}
	return names
}
