package configs

import (
	"fmt"

	"github.com/yeisme/minerva/pkg/rule"
)

// Validate 使用 rule 标签校验整个配置树.
func (c *AppConfig) Validate() error {
	if err := rule.ValidateStruct(c); err != nil {
		if verrs := rule.Errors(err); verrs != nil {
			return fmt.Errorf("invalid config: %w", verrs)
		}

		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}
