// Package illuminus sequences the GenotypeIlluminus workflow: it collates the
// normalized intensities and GenCall genotype calls for the samples of one named
// pipeline run, writing the calls to a Plink BED file and the intensities to a
// SIM file, then calls genotypes with Illuminus chromosome by chromosome and
// writes them to a second, annotated BED file. Both BED files are put through
// quality control.
//
// The stages themselves are external tools reached through the Tasks interface.
// Workflow.Run only decides which stage runs next and with what: a stage whose
// inputs are absent is not invoked, and a failed GenCall QC skips every Illuminus
// stage. Run requires a populated pipeline database.
package illuminus
