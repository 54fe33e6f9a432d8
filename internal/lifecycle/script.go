package lifecycle

// groupFunction matches an end instant against params.windows, the
// serialised form of Bounds.Windows. It is the painless twin of
// Bounds.ClassifyMillis and carries no boundary logic of its own.
const groupFunction = `
int lifecycleGroup(def end, Map p) {
  for (def w : p['windows']) {
    if (w['missing'] == true) {
      if (end == null) { return ((Number) w['group']).intValue(); }
      continue;
    }
    if (end == null) { continue; }
    long e = (long) end;
    if (w['from'] != null && e < ((Number) w['from']).longValue()) { continue; }
    if (w['to'] != null && e > ((Number) w['to']).longValue()) { continue; }
    return ((Number) w['group']).intValue();
  }
  return ((Number) p['missing_group']).intValue();
}
`

// SortScript is a numeric `_script` sort returning the lifecycle group of a
// document computed from its end_instant doc values.
const SortScript = groupFunction + `
def end = null;
if (doc.containsKey('end_instant') && !doc['end_instant'].empty) {
  end = doc['end_instant'].value.toInstant().toEpochMilli();
}
return lifecycleGroup(end, params);
`

// instantFunction reads a string end_instant the way ParseInstant does:
// epoch milliseconds, an ISO instant with offset, or a zone-less ISO date
// time or date taken as UTC.
const instantFunction = `
def endMillis(String raw) {
  String s = raw.trim();
  if (s.isEmpty()) { return null; }
  try { return Long.parseLong(s); } catch (Exception e) {}
  try { return OffsetDateTime.parse(s).toInstant().toEpochMilli(); } catch (Exception e) {}
  try { return LocalDateTime.parse(s).toInstant(ZoneOffset.UTC).toEpochMilli(); } catch (Exception e) {}
  try { return LocalDate.parse(s).atStartOfDay(ZoneOffset.UTC).toInstant().toEpochMilli(); } catch (Exception e) {}
  return null;
}
`

// ReclassifyScript is the update-by-query script for one reclassification
// pass. It recomputes the group from _source and only writes when the result
// still equals params.target, so a document edited between selection and
// update is left to the next run.
const ReclassifyScript = groupFunction + instantFunction + `
def raw = ctx._source.end_instant;
def end = null;
if (raw instanceof Number) {
  end = ((Number) raw).longValue();
} else if (raw instanceof String) {
  end = endMillis((String) raw);
}
int group = lifecycleGroup(end, params);
if (group != ((Number) params['target']).intValue()) {
  ctx.op = 'noop';
  return;
}
ctx._source.stored_group = group;
ctx._source.stored_sort_key = end == null ? ((Number) params['sentinel']).longValue() : end;
ctx._source.classified_at = ((Number) params['now']).longValue();
`

// ScriptParams returns the painless params describing b.
func (b Bounds) ScriptParams() map[string]any {
	return map[string]any{
		"windows":       b.Windows(),
		"missing_group": int(Perpetual),
		"sentinel":      PerpetualSortKey,
		"now":           b.Now,
	}
}

// PassParams returns ScriptParams plus the target group of a reclassify pass.
func (b Bounds) PassParams(target Group) map[string]any {
	params := b.ScriptParams()
	params["target"] = int(target)
	return params
}
