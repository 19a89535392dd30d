//go:build !windows

package installer

import "fmt"

func configureDistribution(name string, uid uint32) error {
	return fmt.Errorf("configuring %s to default uid %d requires the WSL API", name, uid)
}
