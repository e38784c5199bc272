package tags

import (
	"fmt"
	"strconv"
	"strings"
)

// ExpandPlatform expands a wheel platform tag into every platform variant
// it's also compatible with, most specific first: manylinux ABI generations
// on Linux, and the universal2 variant plus earlier macOS major versions
// (each with its universal2 variant) on macOS. Other platforms (e.g.
// Windows) expand to just themselves.
func ExpandPlatform(platform string) []string {
	platforms := []string{platform}

	switch {
	case strings.HasPrefix(platform, "linux_"):
		arch := strings.TrimPrefix(platform, "linux_")

		for _, ml := range []string{
			"manylinux_2_35", "manylinux_2_34", "manylinux_2_31",
			"manylinux_2_28", "manylinux_2_17", "manylinux2014",
		} {
			platforms = append(platforms, ml+"_"+arch)
		}
	case strings.HasPrefix(platform, "macosx_"):
		parts := strings.SplitN(platform, "_", 4) // macosx, major, minor, arch
		if len(parts) == 4 {
			arch := parts[3]
			major, _ := strconv.Atoi(parts[1])

			platforms = append(platforms, fmt.Sprintf("macosx_%s_%s_universal2", parts[1], parts[2]))

			minMajor := 10
			if arch == "arm64" {
				minMajor = 11
			}

			for v := major - 1; v >= minMajor; v-- {
				minor := "0"
				if v == 10 {
					minor = "9"
				}

				platforms = append(platforms,
					fmt.Sprintf("macosx_%d_%s_%s", v, minor, arch),
					fmt.Sprintf("macosx_%d_%s_universal2", v, minor),
				)
			}
		}
	}

	return platforms
}

// NormalizePlatform converts a sysconfig platform tag to wheel tag format,
// e.g. "macosx-14.0-arm64" -> "macosx_14_0_arm64".
func NormalizePlatform(sysTag string) string {
	s := strings.ReplaceAll(sysTag, "-", "_")

	return strings.ReplaceAll(s, ".", "_")
}
