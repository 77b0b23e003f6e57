package tools

import "github.com/yinzara/ha-config-ai-agent/pkg/types"

const (
	SearchConfigFilesName    = "search_config_files"
	ProposeConfigChangesName = "propose_config_changes"
)

var SearchConfigFilesTool = types.Tool{
	Name: SearchConfigFilesName,
	Description: "Search configuration files (all YAML files + lovelace.yaml, plus individual device/entity/area files if search_pattern matches). " +
		"Returns individual files like devices/{id}.json, entities/{entity_id}.json, and areas/{area_id}.json for matching items. " +
		"Devices/entities/areas are ONLY included when search_pattern is provided. " +
		"A search_pattern starting with '/' is a glob over configuration files (e.g. '/packages/**/*.yaml').",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"search_pattern": map[string]any{
				"type":        "string",
				"description": "Optional text to search for in file contents (case-insensitive). Only files containing this text will be returned. Omit to return all files.",
			},
		},
		"required": []string{},
	},
}

// Items carry no "required" list. An item without file_path or new_content
// is reported per item instead of rejecting the whole batch.
var ProposeConfigChangesTool = types.Tool{
	Name: ProposeConfigChangesName,
	Description: "Propose changes to one or more configuration files for user approval. " +
		"Use this to batch multiple file changes together. " +
		"First use search_config_files to read files, then provide complete new content for each as YAML strings.",
	Parameters: types.JSONSchema{
		"type": "object",
		"properties": map[string]any{
			"changes": map[string]any{
				"type":        "array",
				"description": "Array of file changes. Each change must include file_path and new_content.",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"file_path": map[string]any{
							"type":        "string",
							"description": "Relative path to config file (e.g., 'configuration.yaml', 'switches.yaml'). New areas can be specified with 'areas/{area_id}.json' and must include the 'name'",
						},
						"new_content": map[string]any{
							"type":        "string",
							"description": "The complete new content of the file as a valid YAML string. Include all lines - both changed and unchanged.",
						},
					},
				},
			},
		},
		"required": []string{"changes"},
	},
}
