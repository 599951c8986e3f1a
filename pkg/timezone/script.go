package timezone

import (
	"fmt"

	"github.com/spf13/viper"
)

// LoadScript reads a prompter script: an ordered list of answers and an
// optional fallback zone, in any format viper understands.
//
//	fallback: UTC
//	answers:
//	  - timezone: US/Eastern
//	  - timezone: US/Central
//	    dst: true
func LoadScript(path string) (*ScriptedPrompter, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read answers file %s: %w", path, err)
	}

	var answers []Answer
	if err := v.UnmarshalKey("answers", &answers); err != nil {
		return nil, fmt.Errorf("failed to parse answers in %s: %w", path, err)
	}
	return &ScriptedPrompter{Answers: answers, Fallback: v.GetString("fallback")}, nil
}
