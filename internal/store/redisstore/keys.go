package redisstore

import "fmt"

// jobKeyPrefix namespaces job records; the janitor scans it.
const jobKeyPrefix = "job:"

// JobKey is the Redis key holding the serialized job record.
func JobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

// ResultsKey is the Redis key holding the job's result list.
func ResultsKey(jobID string) string {
	return fmt.Sprintf("results:%s", jobID)
}
