package dataaccess

import "fmt"

// Object key layout of the data lake. Daily ticks are partitioned by
// security_id; fundamentals and derived metrics by CIK.
func ticksPath(securityID string) string {
	return fmt.Sprintf("data/raw/ticks/daily/%s/history.csv", securityID)
}

func fundamentalsPath(cik string) string {
	return fmt.Sprintf("data/raw/fundamental/%s/fundamental.csv", cik)
}

func metricsPath(cik string) string {
	return fmt.Sprintf("data/derived/features/fundamental/%s/metrics.csv", cik)
}

func universePath(name string) string {
	return fmt.Sprintf("data/universe/%s.csv", name)
}
