// Package config provides a workflow registry and human-readable workflow
// definitions.
//
// Register workflows by name, then describe a run in YAML:
//
//	library: genotyping
//	workflow: Genotyping::Workflows::GenotypeIlluminus
//	arguments:
//	  - /work/my_project/my_analysis.db
//	  - sample_batch_1
//	  - /work/my_project/pipeline/
//	  - config: /work/my_project/pipeline/pipedb.ini
//	    queue: small
//	    manifest: /genotyping/manifests/Human670-QuadCustom_v1_A.bpm.csv
//	timeout: 48h
//	poll_interval: 30s
//	observers: [log, ledger]
//
// Load it with LoadDefinition and run it with Registry.Run. Observers named in
// the definition are looked up in an ObserverRegistry by BuildObserver.
package config
