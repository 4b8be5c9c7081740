package config

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/chatsync",
	}
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		OpenAI: OpenAIConfig{
			BaseURL:      "https://api.openai.com/v1",
			DefaultModel: "gpt-3.5-turbo",
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# chatsync System Configuration
# Location: ~/.config/chatsync/settings.toml
# This file uses TOML format: https://toml.io

# Directory where conversations and user config are stored
data_directory = "~/.local/share/chatsync"
`
}

func GenerateUserConfigTemplate() string {
	return `# chatsync User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

[openai]
# Completion endpoint base URL
base_url = "https://api.openai.com/v1"

# Default model for new conversations
default_model = "gpt-3.5-turbo"
`
}
