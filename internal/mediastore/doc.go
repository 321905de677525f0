// Package mediastore owns the on-disk layout shared by every pipeline stage.
//
// Artifacts live under fixed stage directories below the media root:
//
//	uploads/{f}
//	audio/{f}_audio.wav
//	subtitles/{f}_transcript.txt
//	subtitles/{f}_translated.txt
//	speech/{f}_translated_audio.mp3
//	output/{f}_final.mp4
//
// where {f} is the job key (the sanitized source filename). Paths are a pure
// function of kind and key, so concurrent jobs never collide and re-runs
// overwrite in place. All writes go through a temp file and rename.
package mediastore
