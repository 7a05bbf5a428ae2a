// Package main is the entry point for afwizard, an adaptive ground-point
// filtering tool for airborne Lidar point clouds. Filter pipelines from
// shareable libraries are run through locally installed filtering tools,
// optionally varying the pipeline per spatial segment of the dataset.
package main

func main() {
	Execute()
}
