// Package lineage models APK signing certificate lineages: the ordered,
// cryptographically linked history of an app's signing certificates.
//
// A lineage starts at the app's original certificate and gains one node per
// key rotation. Every node after the first carries a rotation proof, a
// signature over that node by the previous key, so the chain as a whole
// demonstrates an unbroken handover from the original signer to the current
// one. Each node additionally holds capability grants controlling what the
// platform still honors from that now superseded signer.
//
// Rotate builds fresh chains and extends existing ones. UpdateCapabilities
// edits the grants of any signer already in the chain; grants live outside
// the signed material, so they stay editable after the old keys are gone.
//
// Lineages serialize to a little-endian binary file. Reading one re-verifies
// every rotation proof, so a corrupt or forged chain fails at the boundary
// instead of deep inside a command:
//
//	current, err := lineage.NewSignerIdentity(currentKey, currentCert)
//	if err != nil {
//		return err
//	}
//	next, err := lineage.NewSignerIdentity(nextKey, nextCert)
//	if err != nil {
//		return err
//	}
//	chain, err := lineage.Rotate(nil, current, next, nil, nil, 28)
//	if err != nil {
//		return err
//	}
//	if err := chain.WriteFile("release.lineage"); err != nil {
//		return err
//	}
package lineage
