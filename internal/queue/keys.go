package queue

import "fmt"

func jobKey(id string) string          { return "job:" + id }
func childrenKey(parentID string) string { return "job:" + parentID + ":children" }
func depsKey(id string) string         { return "job:" + id + ":deps" }
func dependentsKey(id string) string   { return "job:" + id + ":dependents" }
func readyKey(queueName string) string { return "queue:" + queueName + ":ready" }
func delayedKey(queueName string) string { return "queue:" + queueName + ":delayed" }
func countersKey(queueName string) string { return "queue:" + queueName + ":counters" }
func progressKey(jobID string) string  { return "job:" + jobID + ":progress" }

func progressChannel(jobID string) string { return fmt.Sprintf("progress:%s", jobID) }
